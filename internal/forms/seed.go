package forms

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// seedActor 种子数据的操作人
const seedActor = "system"

// SeedTemplate 模板种子文件
type SeedTemplate struct {
	TemplateInput `yaml:",inline"`
	Rules         []RuleInput `yaml:"rules"`
}

// LoadSeedFile 读取单个种子文件
func LoadSeedFile(path string) (*SeedTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取模板种子文件失败: %w", err)
	}
	var seed SeedTemplate
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("解析模板种子文件失败: %w", err)
	}
	if seed.FormCode == "" {
		return nil, fmt.Errorf("模板种子文件缺少 form_code: %s", path)
	}
	return &seed, nil
}

// Seeder 启动时导入尚不存在的表单模板
type Seeder struct {
	templates *TemplateService
	rules     *RuleService
	logger    *zap.Logger
}

// NewSeeder 创建模板导入器
func NewSeeder(templates *TemplateService, rules *RuleService, l *zap.Logger) *Seeder {
	if l == nil {
		l = templates.logger
	}
	return &Seeder{templates: templates, rules: rules, logger: l}
}

// SeedDirectory 导入目录下全部 *.yaml，返回新建的模板数
// 单个文件失败只记录日志，继续处理其他文件
func (s *Seeder) SeedDirectory(ctx context.Context, dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return 0, fmt.Errorf("遍历模板目录失败: %w", err)
	}

	created := 0
	for _, file := range files {
		ok, err := s.seedFile(ctx, file)
		if err != nil {
			s.logger.Warn("导入模板种子失败", zap.String("file", file), zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (s *Seeder) seedFile(ctx context.Context, file string) (bool, error) {
	seed, err := LoadSeedFile(file)
	if err != nil {
		return false, err
	}
	exists, err := s.templates.CodeExists(ctx, seed.FormCode)
	if err != nil || exists {
		return false, err
	}

	if _, err := s.templates.Create(ctx, &seed.TemplateInput, seedActor); err != nil {
		return false, err
	}
	for i := range seed.Rules {
		rule := seed.Rules[i]
		rule.FormCode = seed.FormCode
		if _, err := s.rules.Create(ctx, &rule, seedActor); err != nil {
			return true, fmt.Errorf("导入审批规则失败: %w", err)
		}
	}
	s.logger.Info("已导入表单模板", zap.String("form_code", seed.FormCode), zap.Int("rules", len(seed.Rules)))
	return true, nil
}
