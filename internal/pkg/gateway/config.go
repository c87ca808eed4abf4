package gateway

import (
	"strings"

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
)

const defaultShopURL = "https://money.yandex.ru/eshop.xml"

// Config identifies the shop at the payment gateway.
type Config struct {
	ShopID       string
	SCID         string
	ShopURL      string
	ShopPassword string
}

func NewConfigFromEnv() Config {
	return Config{
		ShopID:       strings.TrimSpace(env.GetEnv("GATEWAY_SHOP_ID", "")),
		SCID:         strings.TrimSpace(env.GetEnv("GATEWAY_SCID", "")),
		ShopURL:      strings.TrimSpace(env.GetEnv("GATEWAY_SHOP_URL", defaultShopURL)),
		ShopPassword: strings.TrimSpace(env.GetEnv("GATEWAY_SHOP_PASSWORD", "")),
	}
}

// Configured reports whether callbacks can be verified.
func (c Config) Configured() bool {
	return c.ShopID != "" && c.ShopPassword != ""
}
