package hook

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/hookstorm/cache"
)

// Info is the metadata extensions can declare for a hook through the
// hook_info discovery hook. A non-empty Group means implementations of the
// hook may live in the include file <extension>.<group>.lua instead of the
// main file.
type Info struct {
	Group string
}

// hookInfo returns the hook metadata table, building it on first use by
// invoking <extension>_hook_info across all loaded extensions.
//
// The scan probes callables directly instead of going through the
// implementation cache: the cache build itself needs this table to know
// which includes to load, so routing discovery through it would recurse.
func (d *Dispatcher) hookInfo() (map[string]Info, error) {
	if d.info != nil {
		return d.info, nil
	}

	if data, ok, err := d.backend.Get(cache.KeyHookInfo); err != nil {
		d.logger.Warnf("failed to read hook info cache: %v", err)
	} else if ok {
		d.info = parseInfo(data)
		return d.info, nil
	}

	info := make(map[string]Info)
	for _, ext := range d.source.Loaded() {
		qname := ext.Name + "_" + InfoHook
		if !d.callables.Exists(qname) {
			continue
		}
		result, err := d.callables.Invoke(qname)
		if err != nil {
			return nil, fmt.Errorf("hook info from %q: %w", ext.Name, err)
		}
		declared, ok := result.(map[string]any)
		if !ok {
			continue
		}
		for hookName, raw := range declared {
			entry := Info{}
			if m, ok := raw.(map[string]any); ok {
				if g, ok := m["group"].(string); ok {
					entry.Group = g
				}
			}
			info[hookName] = entry
		}
	}
	d.info = info

	if err := d.backend.Set(cache.KeyHookInfo, encodeInfo(info)); err != nil {
		d.logger.Warnf("failed to write hook info cache: %v", err)
	}
	return info, nil
}

// parseInfo decodes the persisted hook metadata blob.
func parseInfo(data []byte) map[string]Info {
	info := make(map[string]Info)
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		info[key.String()] = Info{Group: value.Get("group").String()}
		return true
	})
	return info
}

// encodeInfo serializes the hook metadata table, sorted for determinism.
func encodeInfo(info map[string]Info) []byte {
	hooks := make([]string, 0, len(info))
	for hook := range info {
		hooks = append(hooks, hook)
	}
	sort.Strings(hooks)

	blob := "{}"
	for _, hook := range hooks {
		blob, _ = sjson.Set(blob, hook+".group", info[hook].Group)
	}
	return []byte(blob)
}
