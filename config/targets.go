package config

import (
	"strconv"
	"strings"

	"guardian-sentinel-bot/internal/types"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ParseTargets parses "name:address:decimals:threshold" entries separated by commas.
func ParseTargets(raw string) ([]types.WatchTarget, error) {
	var targets []types.WatchTarget
	for _, entry := range splitList(raw) {
		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			return nil, errors.Errorf("invalid watch target %q, expected name:address:decimals:threshold", entry)
		}

		decimals, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 32)
		if err != nil || decimals < 0 {
			return nil, errors.Errorf("invalid decimals in watch target %q", entry)
		}

		threshold, err := decimal.NewFromString(strings.TrimSpace(parts[3]))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid threshold in watch target %q", entry)
		}

		targets = append(targets, types.WatchTarget{
			Name:            strings.TrimSpace(parts[0]),
			ContractAddress: strings.TrimSpace(parts[1]),
			Decimals:        int32(decimals),
			AlertThreshold:  threshold,
		})
	}
	return targets, nil
}

// ParseVIPs parses "name:address" entries separated by commas.
func ParseVIPs(raw string) ([]types.VipEntry, error) {
	var vips []types.VipEntry
	for _, entry := range splitList(raw) {
		parts := strings.Split(entry, ":")
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid vip wallet %q, expected name:address", entry)
		}
		vips = append(vips, types.VipEntry{
			DisplayName: strings.TrimSpace(parts[0]),
			Address:     strings.TrimSpace(parts[1]),
		})
	}
	return vips, nil
}

// Targets returns the configured watch targets.
func Targets() ([]types.WatchTarget, error) {
	return ParseTargets(GetString("watch_targets"))
}

// VIPs returns the configured VIP wallets.
func VIPs() ([]types.VipEntry, error) {
	return ParseVIPs(GetString("vip_wallets"))
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
