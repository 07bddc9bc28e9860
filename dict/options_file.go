package dict

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadCatalogOptionsFromFile 从命名连接档案文件中读取一份目录配置
//
// 档案布局与数仓侧的 db_conn 配置一致：档案名 → 连接参数。
// json/yaml/toml 按顶层键组织档案，ini 按节组织，格式由扩展名识别。
func LoadCatalogOptionsFromFile(path string, profile string) (*CatalogOptions, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".ini" {
		file, err := ini.Load(path)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to load config file %s", path)
		}
		section, err := file.GetSection(profile)
		if err != nil {
			return nil, errors.Errorf("profile %s not found in %s", profile, path)
		}
		options := &CatalogOptions{}
		if err := section.MapTo(options); err != nil {
			return nil, errors.WithMessagef(err, "failed to decode profile %s", profile)
		}
		return options, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read config file %s", path)
	}

	profiles := map[string]*CatalogOptions{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &profiles); err != nil {
			return nil, errors.WithMessagef(err, "failed to decode config file %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &profiles); err != nil {
			return nil, errors.WithMessagef(err, "failed to decode config file %s", path)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &profiles); err != nil {
			return nil, errors.WithMessagef(err, "failed to decode config file %s", path)
		}
	default:
		return nil, errors.Errorf("unsupported config format: %s", ext)
	}

	options, ok := profiles[profile]
	if !ok || options == nil {
		return nil, errors.Errorf("profile %s not found in %s", profile, path)
	}
	return options, nil
}

// NewCatalogWithConfigFile 按档案文件中的配置打开目录存储
func NewCatalogWithConfigFile(path string, profile string) (Catalog, error) {
	options, err := LoadCatalogOptionsFromFile(path, profile)
	if err != nil {
		return nil, err
	}
	return NewCatalogWithOptions(options)
}
