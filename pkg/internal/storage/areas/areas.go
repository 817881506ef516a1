// Package areas 管理文件区：照片原体、可再生缓存与归档块.
// 区内条目以 "<user>/<id>" 命名，枚举返回每个条目的大小与修改时间.
// 文件区只承载字节，记账以 Items 表为准，这里的枚举用于对账.
package areas

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/yeisme/agrivault/pkg/configs"
	nlog "github.com/yeisme/agrivault/pkg/log"
)

// Kind 文件区的种类.
type Kind string

const (
	KindPhotos  Kind = "photos"
	KindCache   Kind = "cache"
	KindArchive Kind = "archive"
)

// Kinds 所有文件区.
var Kinds = []Kind{KindPhotos, KindCache, KindArchive}

// Entry 文件区内的一个条目.
type Entry struct {
	Name    string // 区内相对路径，形如 "<user>/<id>"
	Size    int64
	ModTime time.Time
}

// Manager 在单个根目录下管理所有文件区.
type Manager struct {
	fs   afero.Fs
	root string
}

// New 基于操作系统文件系统创建 Manager，并确保各区目录存在.
func New(cfg *configs.AreasConfig) (*Manager, error) {
	return NewWithFs(afero.NewOsFs(), cfg.Root)
}

// NewWithFs 使用给定文件系统创建 Manager，测试可传入 afero.NewMemMapFs().
func NewWithFs(fs afero.Fs, root string) (*Manager, error) {
	m := &Manager{fs: fs, root: root}

	for _, k := range Kinds {
		if err := fs.MkdirAll(m.kindRoot(k), 0o755); err != nil {
			return nil, fmt.Errorf("create area %s: %w", k, err)
		}
	}

	return m, nil
}

// Root 返回文件区根目录.
func (m *Manager) Root() string { return m.root }

func (m *Manager) kindRoot(k Kind) string {
	return filepath.Join(m.root, string(k))
}

func (m *Manager) entryPath(k Kind, name string) string {
	return filepath.Join(m.kindRoot(k), filepath.FromSlash(name))
}

// WriteFile 写入条目内容，必要时创建用户子目录.
func (m *Manager) WriteFile(k Kind, name string, data []byte) error {
	p := m.entryPath(k, name)
	if err := m.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}

	if err := afero.WriteFile(m.fs, p, data, 0o644); err != nil {
		return fmt.Errorf("write entry %s/%s: %w", k, name, err)
	}

	return nil
}

// ReadFile 读取条目内容.
func (m *Manager) ReadFile(k Kind, name string) ([]byte, error) {
	data, err := afero.ReadFile(m.fs, m.entryPath(k, name))
	if err != nil {
		return nil, fmt.Errorf("read entry %s/%s: %w", k, name, err)
	}

	return data, nil
}

// Remove 删除条目；条目不存在时不视为错误.
func (m *Manager) Remove(k Kind, name string) error {
	err := m.fs.Remove(m.entryPath(k, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove entry %s/%s: %w", k, name, err)
	}

	return nil
}

// RemovePrefix 删除区内名字带给定前缀的全部条目，返回释放的字节数.
// 用户子目录整体清除走这里（前缀 "<user>/"）.
func (m *Manager) RemovePrefix(ctx context.Context, k Kind, prefix string) (int64, error) {
	entries, err := m.Entries(ctx, k)
	if err != nil {
		return 0, err
	}

	var freed int64

	for _, e := range entries {
		if !strings.HasPrefix(e.Name, prefix) {
			continue
		}

		if err := m.Remove(k, e.Name); err != nil {
			nlog.Logger().Warn().Err(err).Str("area", string(k)).Str("entry", e.Name).Msg("remove failed, skipping")
			continue
		}

		freed += e.Size
	}

	return freed, nil
}

// Entries 枚举区内条目. 单个条目读取失败只记日志并跳过（贡献 0），
// 枚举可被 ctx 取消，用于进程关闭时中断长扫描.
func (m *Manager) Entries(ctx context.Context, k Kind) ([]Entry, error) {
	root := m.kindRoot(k)

	var out []Entry

	err := afero.Walk(m.fs, root, func(p string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			// 探测失败隔离：坏条目贡献 0，不中断扫描
			nlog.Logger().Warn().Err(walkErr).Str("area", string(k)).Str("path", p).Msg("probe failed, counting as zero")
			return nil
		}

		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}

		out = append(out, Entry{
			Name:    path.Clean(filepath.ToSlash(rel)),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk area %s: %w", k, err)
	}

	return out, nil
}

// TotalSize 区内全部条目的字节和.
func (m *Manager) TotalSize(ctx context.Context, k Kind) (int64, error) {
	entries, err := m.Entries(ctx, k)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}

	return total, nil
}

// FreeBytes 估算文件区所在卷的剩余空间.
func (m *Manager) FreeBytes() (int64, error) {
	// 内存文件系统等场景没有真实卷，返回非常大的值
	if _, ok := m.fs.(*afero.OsFs); !ok {
		return int64(1) << 40, nil
	}

	return freeBytes(m.root)
}
