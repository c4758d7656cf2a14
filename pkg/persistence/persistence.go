package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/betbot/tradegate/pkg/logger"
)

// Service 持久化服务接口
type Service interface {
	NewStore(name string) Store
	// List 返回以 prefix 开头的所有存储名（按名称排序）
	List(prefix string) ([]string, error)
}

// Store 存储接口
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

// JSONFileService 基于 JSON 文件的持久化服务，每个 store 一个文件
type JSONFileService struct {
	baseDir string
}

// NewJSONFileService 创建 JSON 文件持久化服务
func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{
		baseDir: baseDir,
	}
}

// BaseDir 返回存储目录
func (s *JSONFileService) BaseDir() string {
	return s.baseDir
}

// NewStore 创建新的存储
func (s *JSONFileService) NewStore(name string) Store {
	return &JSONFileStore{
		service: s,
		name:    name,
	}
}

// List 列出目录下以 prefix 开头的存储
func (s *JSONFileService) List(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	safePrefix := sanitize(prefix)
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if strings.HasPrefix(name, safePrefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// JSONFileStore JSON 文件存储实现
type JSONFileStore struct {
	service *JSONFileService
	name    string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitize(name string) string {
	return keySanitizer.ReplaceAllString(name, "_")
}

func (s *JSONFileStore) filePath() string {
	return filepath.Join(s.service.baseDir, sanitize(s.name)+".json")
}

// Save 保存数据。先写临时文件并 fsync，再 rename 覆盖，读方不会看到半写的文件。
func (s *JSONFileStore) Save(data interface{}) error {
	logger.Debugf("[persistence] Save: name=%s", s.name)
	if err := os.MkdirAll(s.service.baseDir, 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	path := s.filePath()
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return syncDir(s.service.baseDir)
}

// Load 加载数据
func (s *JSONFileStore) Load(data interface{}) error {
	logger.Debugf("[persistence] Load: name=%s", s.name)
	b, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}

// syncDir 刷新目录项，保证 rename 落盘
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// 部分文件系统不支持目录 fsync，忽略该错误
	_ = d.Sync()
	return nil
}
