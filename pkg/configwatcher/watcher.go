package configwatcher

import (
	"context"
	"path/filepath"
	"time"

	"skillpath_backend/internal/config"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type ConfigReloader func(cfg *config.Config)

const debounce = time.Second

// WatchConfig 监听配置文件变更，防抖后重新加载并回调；ctx 取消时退出
func WatchConfig(ctx context.Context, configFile string, log *zap.Logger, reloader ConfigReloader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(configFile)
	if err != nil {
		return err
	}

	// 监听目录，兼容编辑器先删除再写入的保存方式
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	// nil channel 在没有待处理变更时永远阻塞
	var reload <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// 防抖处理
			reload = time.After(debounce)
		case <-reload:
			reload = nil
			newCfg, err := config.LoadConfig(filepath.Dir(absPath))
			if err != nil {
				log.Error("Failed to reload config", zap.Error(err))
				continue
			}
			log.Info("Config reloaded", zap.String("file", absPath))
			reloader(newCfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Config watcher error", zap.Error(err))
		}
	}
}
