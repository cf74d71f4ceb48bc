package policygate

import (
	"fmt"
	"time"

	corspolicy "github.com/policy-gate/policy-gate/pkg/cors-policy"
	"github.com/policy-gate/policy-gate/pkg/negotiate"

	"github.com/ilyakaznacheev/cleanenv"
)

// FileConfig is the on-disk configuration of the gate. Every field can be
// overridden from the environment.
type FileConfig struct {
	Listen string `yaml:"listen" env:"GATE_LISTEN" env-default:":8080"`
	Origin string `yaml:"origin" env:"GATE_ORIGIN"`

	Store struct {
		Driver string `yaml:"driver"  env:"GATE_STORE_DRIVER" env-default:"memory"`
		Path   string `yaml:"path"    env:"GATE_STORE_PATH"   env-default:"./policy.db"`
		Redis  struct {
			Addr     string `yaml:"addr"     env:"GATE_REDIS_ADDR"     env-default:"127.0.0.1:6379"`
			Password string `yaml:"password" env:"GATE_REDIS_PASSWORD" env-default:""`
			DB       int    `yaml:"db"       env:"GATE_REDIS_DB"       env-default:"0"`
			Prefix   string `yaml:"prefix"   env:"GATE_REDIS_PREFIX"   env-default:"policygate"`
		} `yaml:"redis"`
	} `yaml:"store"`

	CORS struct {
		AllowedOrigins   []string `yaml:"allowedOrigins"   env:"GATE_CORS_ORIGINS"`
		AllowedMethods   []string `yaml:"allowedMethods"   env:"GATE_CORS_METHODS" env-default:"GET,POST,HEAD"`
		AllowedHeaders   []string `yaml:"allowedHeaders"   env:"GATE_CORS_HEADERS"`
		AllowCredentials bool     `yaml:"allowCredentials" env:"GATE_CORS_CREDENTIALS"`
		MaxAgeSeconds    int      `yaml:"maxAgeSeconds"    env:"GATE_CORS_MAX_AGE"`
	} `yaml:"cors"`

	// Offers lists the media types the origin can produce, most preferred
	// first.
	Offers []string `yaml:"offers" env:"GATE_OFFERS"`
}

// LoadConfig reads the configuration file and applies environment
// overrides on top.
func LoadConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

// CORSPolicy builds the immutable decision policy from the configuration.
func (c FileConfig) CORSPolicy() corspolicy.Policy {
	return corspolicy.NewPolicy(
		c.CORS.AllowedOrigins,
		c.CORS.AllowedMethods,
		c.CORS.AllowedHeaders,
		c.CORS.AllowCredentials,
		time.Duration(c.CORS.MaxAgeSeconds)*time.Second,
	)
}

// OfferVariants converts the configured offers to negotiation variants.
func (c FileConfig) OfferVariants() []negotiate.Variant {
	offers := make([]negotiate.Variant, 0, len(c.Offers))
	for _, o := range c.Offers {
		offers = append(offers, negotiate.Variant(o))
	}
	return offers
}
