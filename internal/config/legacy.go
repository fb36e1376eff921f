package config

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// legacySyncDays is the sync window older configs assumed when the key
// was missing.
const legacySyncDays = 1

// ImportLegacyJSON converts a version 1 or 2 JSON config into pipelines.
// It accepts the "device", "device_serial" and "plugin" keys of that
// format and fills in its defaults. Entries without a name are named
// after their position.
func ImportLegacyJSON(data []byte) ([]Pipeline, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("legacy config is not valid JSON")
	}

	root := gjson.ParseBytes(data)

	list := root.Get("pipelines")
	if !list.Exists() {
		return nil, fmt.Errorf("legacy config has no pipelines array")
	}

	if !list.IsArray() {
		return nil, fmt.Errorf("legacy config pipelines is not an array")
	}

	var out []Pipeline

	for i, item := range list.Array() {
		p := Pipeline{
			Name:              item.Get("name").String(),
			Local:             item.Get("local").String(),
			Remote:            item.Get("device").String(),
			Serial:            item.Get("device_serial").String(),
			Direction:         "local_to_device",
			IncludeExtensions: stringList(item.Get("include_extensions")),
			ExcludeExtensions: stringList(item.Get("exclude_extensions")),
			SyncDays:          legacySyncDays,
			Policy:            item.Get("plugin").String(),
			AutoSync:          item.Get("auto_sync").Bool(),
		}

		if r := item.Get("remote"); r.Exists() && p.Remote == "" {
			p.Remote = r.String()
		}

		if d := item.Get("direction"); d.Exists() && d.String() != "" {
			p.Direction = d.String()
		}

		if d := item.Get("sync_days"); d.Exists() {
			p.SyncDays = int(d.Int())
		}

		if p.Name == "" {
			p.Name = fmt.Sprintf("pipeline-%d", i+1)
		}

		if cfg := item.Get("plugin_config"); cfg.IsObject() {
			if m, ok := cfg.Value().(map[string]any); ok && len(m) > 0 {
				p.PolicyConfig = m
			}
		}

		p.normalize()

		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("legacy pipeline %d: %w", i+1, err)
		}

		out = append(out, p)
	}

	return out, nil
}

func stringList(r gjson.Result) []string {
	var out []string

	for _, v := range r.Array() {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}

	return out
}
