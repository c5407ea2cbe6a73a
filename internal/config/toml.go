package config

import "github.com/BurntSushi/toml"

// tomlProvider feeds a TOML document to koanf. koanf calls Read when no
// parser is given.
type tomlProvider struct {
	content []byte
}

func (p tomlProvider) ReadBytes() ([]byte, error) {
	return p.content, nil
}

func (p tomlProvider) Read() (map[string]any, error) {
	out := make(map[string]any)
	if err := toml.Unmarshal(p.content, &out); err != nil {
		return nil, err
	}
	return out, nil
}
