// Package config loads the store settings shared by the services: warehouse
// identity, parcel defaults and the credentials of the external APIs.
//
// Every key can be set through the environment (dots become underscores, so
// biteship.api_key is BITESHIP_API_KEY) or through a YAML file named by
// STORE_CONFIG_FILE. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Warehouse struct {
	Name         string `mapstructure:"name"`
	Phone        string `mapstructure:"phone"`
	Email        string `mapstructure:"email"`
	Organization string `mapstructure:"organization"`
	Address      string `mapstructure:"address"`
	PostalCode   string `mapstructure:"postal_code"`
	Note         string `mapstructure:"note"`
}

// Parcel holds the defaults used when items carry no weight or dimensions.
// Weights are grams, dimensions centimetres.
type Parcel struct {
	DefaultWeight int `mapstructure:"default_weight"`
	MinItemWeight int `mapstructure:"min_item_weight"`
	Length        int `mapstructure:"length"`
	Width         int `mapstructure:"width"`
	Height        int `mapstructure:"height"`
}

type Biteship struct {
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Couriers string `mapstructure:"couriers"`
}

type Tripay struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	PrivateKey   string `mapstructure:"private_key"`
	MerchantCode string `mapstructure:"merchant_code"`
	CallbackURL  string `mapstructure:"callback_url"`
	ReturnURL    string `mapstructure:"return_url"`
}

type Mail struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	From      string `mapstructure:"from"`
	StoreName string `mapstructure:"store_name"`
}

type Config struct {
	Warehouse         Warehouse     `mapstructure:"warehouse"`
	Parcel            Parcel        `mapstructure:"parcel"`
	Biteship          Biteship      `mapstructure:"biteship"`
	Tripay            Tripay        `mapstructure:"tripay"`
	Mail              Mail          `mapstructure:"mail"`
	HTTPClientTimeout time.Duration `mapstructure:"http_client_timeout"`
}

var ErrMissingSetting = errors.New("missing required setting")

func setDefaults(v *viper.Viper) {
	v.SetDefault("warehouse.name", "Gudang Toko")
	v.SetDefault("warehouse.phone", "")
	v.SetDefault("warehouse.email", "")
	v.SetDefault("warehouse.organization", "")
	v.SetDefault("warehouse.address", "")
	v.SetDefault("warehouse.postal_code", "")
	v.SetDefault("warehouse.note", "")

	v.SetDefault("parcel.default_weight", 700)
	v.SetDefault("parcel.min_item_weight", 100)
	v.SetDefault("parcel.length", 30)
	v.SetDefault("parcel.width", 20)
	v.SetDefault("parcel.height", 12)

	v.SetDefault("biteship.base_url", "https://api.biteship.com")
	v.SetDefault("biteship.api_key", "")
	v.SetDefault("biteship.couriers", "jne,jnt,sicepat,anteraja,pos")

	v.SetDefault("tripay.base_url", "https://tripay.co.id/api")
	v.SetDefault("tripay.api_key", "")
	v.SetDefault("tripay.private_key", "")
	v.SetDefault("tripay.merchant_code", "")
	v.SetDefault("tripay.callback_url", "")
	v.SetDefault("tripay.return_url", "")

	v.SetDefault("mail.base_url", "https://api.resend.com")
	v.SetDefault("mail.api_key", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.store_name", "Toko")

	v.SetDefault("http_client_timeout", "15s")
}

// Load reads the store settings. A missing file named by STORE_CONFIG_FILE is
// an error; no file at all means environment and defaults only.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("STORE_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read store config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode store config: %w", err)
	}

	return cfg, nil
}

// CourierList splits the configured rate-lookup couriers.
func (b Biteship) CourierList() []string {
	var out []string
	for _, c := range strings.Split(b.Couriers, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// RequireShipping checks the settings needed to create shipments.
func (c *Config) RequireShipping() error {
	return require(map[string]string{
		"BITESHIP_API_KEY":      c.Biteship.APIKey,
		"WAREHOUSE_PHONE":       c.Warehouse.Phone,
		"WAREHOUSE_ADDRESS":     c.Warehouse.Address,
		"WAREHOUSE_POSTAL_CODE": c.Warehouse.PostalCode,
	})
}

// RequirePayments checks the settings needed to talk to the payment gateway.
func (c *Config) RequirePayments() error {
	return require(map[string]string{
		"TRIPAY_API_KEY":       c.Tripay.APIKey,
		"TRIPAY_PRIVATE_KEY":   c.Tripay.PrivateKey,
		"TRIPAY_MERCHANT_CODE": c.Tripay.MerchantCode,
	})
}

func require(settings map[string]string) error {
	var missing []string
	for name, value := range settings {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
}
