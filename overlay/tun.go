package overlay

import (
	"fmt"
	"net/netip"

	"github.com/slackhq/tuncap/config"
	"github.com/slackhq/tuncap/util"
)

const DefaultDevice = "tun0"

// OptionsFromConfig reads the tun.* keys.
func OptionsFromConfig(c *config.C) (string, Mode, Options, error) {
	mode, err := ParseMode(c.GetString("tun.mode", "tun"))
	if err != nil {
		return "", 0, Options{}, err
	}

	o := Options{
		MTU:        c.GetInt("tun.mtu", DefaultMTU),
		PacketInfo: c.GetBool("tun.packet_info", true),
		BufferSize: c.GetInt("tun.buffer_size", 0),
	}

	if o.MTU <= 0 {
		return "", 0, Options{}, fmt.Errorf("tun.mtu must be greater than 0, got %d", o.MTU)
	}

	if o.BufferSize < 0 {
		return "", 0, Options{}, fmt.Errorf("tun.buffer_size can not be negative, got %d", o.BufferSize)
	}

	if o.PacketInfo && o.BufferSize > 0 && o.BufferSize < PacketInfoLen {
		return "", 0, Options{}, fmt.Errorf("tun.buffer_size must be at least %d when tun.packet_info is enabled", PacketInfoLen)
	}

	for i, a := range c.GetStringSlice("tun.addresses", []string{}) {
		p, err := netip.ParsePrefix(a)
		if err != nil {
			return "", 0, Options{}, util.NewContextualError("Could not parse tun.addresses", map[string]any{"entry": i + 1, "address": a}, err)
		}
		o.Addresses = append(o.Addresses, p)
	}

	return c.GetString("tun.dev", DefaultDevice), mode, o, nil
}
