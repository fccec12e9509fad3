package settings_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/model"
	"jonglog-service/internal/service/settings"
	appErr "jonglog-service/pkg/errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSettingsService(t *testing.T, fallback engine.Rules) *settings.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Setting{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return settings.NewService(db, fallback)
}

func TestGetRulesFallsBack(t *testing.T) {
	ctx := context.Background()

	svc := newSettingsService(t, engine.Rules{})
	rules, err := svc.GetRules(ctx)
	if err != nil {
		t.Fatalf("get rules failed: %v", err)
	}
	if !rules.Equal(engine.DefaultRules()) {
		t.Fatalf("expected default rules, got %+v", rules)
	}
}

func TestSaveAndResetRules(t *testing.T) {
	ctx := context.Background()
	fallback := engine.DefaultRules()
	fallback.Uma = []int{20, 10, -10, -20}
	svc := newSettingsService(t, fallback)

	custom := engine.Rules{StartScore: 30000, ReturnScore: 30000, Uma: []int{15, 5, -5, -15}}
	if _, err := svc.SaveRules(ctx, custom); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	custom.Uma = []int{10, 5, -5, -10}
	if _, err := svc.SaveRules(ctx, custom); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	got, err := svc.GetRules(ctx)
	if err != nil {
		t.Fatalf("get rules failed: %v", err)
	}
	if !got.Equal(custom) {
		t.Fatalf("expected saved rules, got %+v", got)
	}

	reset, err := svc.ResetRules(ctx)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if !reset.Equal(fallback) {
		t.Fatalf("expected fallback after reset, got %+v", reset)
	}
}

func TestSaveRulesRejectsInvalid(t *testing.T) {
	svc := newSettingsService(t, engine.DefaultRules())

	_, err := svc.SaveRules(context.Background(), engine.Rules{StartScore: 25000, ReturnScore: 30000, Uma: []int{10}})
	if !errors.Is(err, appErr.ErrInvalidRules) {
		t.Fatalf("expected ErrInvalidRules, got %v", err)
	}
}
