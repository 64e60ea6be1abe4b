package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// AppConfig holds the configuration for the order engine.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	// Environment specifies the runtime environment (e.g., development, production).
	Environment string `mapstructure:"APP_ENV" default:"development"`
	// LogLevel defines the logging verbosity (e.g., debug, info, error).
	LogLevel string `mapstructure:"LOG_LEVEL" default:"info"`

	// Redis holds the cart store connection configuration.
	Redis RedisConfig `mapstructure:",squash"`

	// Pricing holds tax and shipping computation settings.
	Pricing PricingConfig `mapstructure:",squash"`

	// Inventory holds stock monitoring settings.
	Inventory InventoryConfig `mapstructure:",squash"`

	// Orders holds lifecycle policy settings.
	Orders OrdersConfig `mapstructure:",squash"`
}

// RedisConfig holds the connection details for the Redis-backed cart store.
type RedisConfig struct {
	// URL is the Redis connection string (redis://[:password@]host[:port][/db]).
	URL string `mapstructure:"REDIS_URL" default:"redis://localhost:6379"`
	// AnonymousCartTTLHours is how long an anonymous session cart is retained.
	AnonymousCartTTLHours int `mapstructure:"ANON_CART_TTL_HOURS" default:"72"`
}

// PricingConfig holds tax and shipping settings for the pricing engine.
type PricingConfig struct {
	// FlatTaxAmount is the default tax added to orders with no regional rule, in currency units.
	FlatTaxAmount string `mapstructure:"FLAT_TAX_AMOUNT" default:"0"`
	// FreeShippingSubtotal is the subtotal at or above which shipping is free.
	FreeShippingSubtotal string `mapstructure:"FREE_SHIPPING_SUBTOTAL" default:"50"`
	// FreeShippingMinLines is the minimum line count for the card-payment free-shipping promo.
	FreeShippingMinLines int `mapstructure:"FREE_SHIPPING_MIN_LINES" default:"3"`
	// NoSalesTaxRegions is a comma-separated list of regions that never accrue sales tax.
	NoSalesTaxRegions string `mapstructure:"NO_SALES_TAX_REGIONS" default:"OR,MT,NH,DE"`
	// RegionTaxMultipliers maps region codes to tax multipliers, as "REGION:RATE" pairs
	// separated by commas (e.g. "CA:0.0725,NY:0.08").
	RegionTaxMultipliers string `mapstructure:"REGION_TAX_MULTIPLIERS" default:"CA:0.0725,NY:0.08,TX:0.0625"`
}

// InventoryConfig holds stock monitoring settings for the inventory ledger.
type InventoryConfig struct {
	// RestockEscalationThreshold is the number of consecutive low-stock triggers
	// before a restock notification is escalated.
	RestockEscalationThreshold int `mapstructure:"RESTOCK_ESCALATION_THRESHOLD" default:"3"`
	// SeasonalStockMultiplier scales the reorder point for seasonal products.
	SeasonalStockMultiplier float64 `mapstructure:"SEASONAL_STOCK_MULTIPLIER" default:"1.5"`
	// HighDemandStockMultiplier scales the reorder point for high-demand products.
	HighDemandStockMultiplier float64 `mapstructure:"HIGH_DEMAND_STOCK_MULTIPLIER" default:"2.0"`
	// PerishableStockMultiplier scales the reorder point for perishable products.
	PerishableStockMultiplier float64 `mapstructure:"PERISHABLE_STOCK_MULTIPLIER" default:"0.75"`
}

// OrdersConfig holds lifecycle policy settings.
type OrdersConfig struct {
	// ShippedCancellationWindowHours is how long after shipping an order may still be cancelled.
	ShippedCancellationWindowHours int `mapstructure:"SHIPPED_CANCEL_WINDOW_HOURS" default:"24"`
}

// SplitList parses a comma-separated config value into trimmed, non-empty entries.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// SplitPairs parses a comma-separated list of "KEY:VALUE" entries into a map.
// Malformed entries are skipped.
func SplitPairs(raw string) map[string]string {
	out := make(map[string]string)
	for _, entry := range SplitList(raw) {
		key, value, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// Load loads configuration from .env files and environment variables.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// processTags iterates over the struct fields and sets default values in Viper.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		defaultValue := field.Tag.Get("default")

		if key != "" {
			v.BindEnv(key)
		}

		if key != "" && defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		required := field.Tag.Get("required")
		if required == "true" {
			value := val.Field(i)
			if isZero(value) {
				key := field.Tag.Get("mapstructure")
				return fmt.Errorf("missing required configuration: %s", key)
			}
		}
	}
	return nil
}

// isZero checks if a reflect.Value is the zero value for its type.
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}
