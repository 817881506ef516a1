package rule_test

import (
	"testing"

	"github.com/yeisme/agrivault/pkg/rule"
)

// quotaLike 用于测试 ValidateStruct 的字节预算风格结构.
type quotaLike struct {
	Name  string `rule:"required"`
	Bytes int64  `rule:"gt=0"`
}

// TestEngine 测试 Engine 函数返回非 nil 实例.
func TestEngine(t *testing.T) {
	engine := rule.Engine()
	if engine == nil {
		t.Error("Engine() returned nil")
	}
}

// TestValidateStruct 测试 ValidateStruct 对有效和无效结构体的验证.
func TestValidateStruct(t *testing.T) {
	valid := quotaLike{Name: "photos", Bytes: 50 << 20}
	if err := rule.ValidateStruct(valid); err != nil {
		t.Errorf("expected no error for valid struct, got %v", err)
	}

	// 缺少 Name
	if err := rule.ValidateStruct(quotaLike{Name: "", Bytes: 1}); err == nil {
		t.Error("expected error for missing name, got nil")
	}

	// 非正预算
	if err := rule.ValidateStruct(quotaLike{Name: "cache", Bytes: 0}); err == nil {
		t.Error("expected error for non-positive bytes, got nil")
	}

	if err := rule.ValidateStruct(quotaLike{Name: "cache", Bytes: -1}); err == nil {
		t.Error("expected error for negative bytes, got nil")
	}
}

// TestValidateVar 测试 ValidateVar 对变量的验证.
func TestValidateVar(t *testing.T) {
	if err := rule.ValidateVar(int64(1024), "gt=0"); err != nil {
		t.Errorf("expected no error for positive size, got %v", err)
	}

	if err := rule.ValidateVar(int64(0), "gt=0"); err == nil {
		t.Error("expected error for zero size, got nil")
	}

	if err := rule.ValidateVar("journal_entries", "required"); err != nil {
		t.Errorf("expected no error for non-empty category, got %v", err)
	}
}
