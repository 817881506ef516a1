package configs

import (
	"github.com/spf13/viper"
)

const (
	DefaultAreasRoot = "data/areas" // 文件区根目录
)

// AreasConfig 文件区配置. photos/cache/archive 三个子目录分别存放照片原体、
// 可再生缓存和归档块.
type AreasConfig struct {
	Root string `mapstructure:"root" rule:"required"`
}

// setDefaults 设置文件区配置的默认值.
func (c *AreasConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("areas.root", DefaultAreasRoot)
}
