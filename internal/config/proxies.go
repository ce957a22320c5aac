package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/lead-harvester/internal/proxy"
)

// proxyListSchema validates the proxy list file before it is unmarshalled,
// so a malformed entry is reported with its path instead of a zero-valued
// proxy silently joining the pool.
const proxyListSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["proxies"],
	"properties": {
		"proxies": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["host", "port"],
				"properties": {
					"host": {"type": "string", "minLength": 1},
					"port": {"type": "integer", "minimum": 1, "maximum": 65535},
					"protocol": {"type": "string", "enum": ["http", "https", "socks5"]},
					"username": {"type": "string"},
					"password": {"type": "string"},
					"max_concurrent_requests": {"type": "integer", "minimum": 1}
				},
				"additionalProperties": true
			}
		}
	}
}`

type proxyListFile struct {
	Proxies []proxy.Config `json:"proxies"`
}

// LoadProxyList reads and validates a proxy list JSON file of the form
// {"proxies": [{"host": ..., "port": ...}, ...]}.
func LoadProxyList(path string) ([]proxy.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy file %s: %w", path, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(proxyListSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate proxy file %s: %w", path, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, fmt.Errorf("invalid proxy file %s: %s", path, strings.Join(details, "; "))
	}

	var file proxyListFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse proxy file %s: %w", path, err)
	}
	return file.Proxies, nil
}
