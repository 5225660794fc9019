package app

import (
	"errors"
	"io/fs"

	"github.com/taoyao-code/scent-server/internal/catalog"
	"go.uber.org/zap"
)

// LoadCatalog 加载气味目录；文件不存在时使用空目录，格式错误则返回错误
func LoadCatalog(path string, logger *zap.Logger) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Empty(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("scent catalog not found, scent_name lookups disabled", zap.String("path", path))
			return catalog.Empty(), nil
		}
		return nil, err
	}
	logger.Info("scent catalog loaded", zap.String("path", path), zap.Int("scents", cat.Len()))
	return cat, nil
}
