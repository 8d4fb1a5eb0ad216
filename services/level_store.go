package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GrainArc/HydroMesh/methods"
	"github.com/GrainArc/HydroMesh/models"
	"github.com/paulmach/orb"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrLevelNotFound = errors.New("water level not found")

// LevelStore 水位多边形的持久化
type LevelStore struct {
	db *gorm.DB
}

func NewLevelStore(db *gorm.DB) *LevelStore {
	return &LevelStore{db: db}
}

// Save 写入或覆盖某站点某一级水位
func (s *LevelStore) Save(ctx context.Context, site string, level int, geom orb.Geometry, props map[string]interface{}) (*models.WaterLevel, error) {
	rec := models.WaterLevel{Site: site, Level: level}
	if err := rec.SetGeometry(geom); err != nil {
		return nil, err
	}
	if len(props) > 0 {
		data, err := json.Marshal(props)
		if err != nil {
			return nil, fmt.Errorf("encode properties: %w", err)
		}
		rec.Properties = datatypes.JSON(data)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site"}, {Name: "level"}},
		DoUpdates: clause.AssignmentColumns([]string{"geom", "properties", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("save %s level %d: %w", site, level, err)
	}
	return &rec, nil
}

// List 站点的全部水位，按级别升序
func (s *LevelStore) List(ctx context.Context, site string) ([]models.WaterLevel, error) {
	var levels []models.WaterLevel
	if err := s.db.WithContext(ctx).Where("site = ?", site).Order("level").Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("list %s levels: %w", site, err)
	}
	return levels, nil
}

func (s *LevelStore) Get(ctx context.Context, site string, level int) (*models.WaterLevel, error) {
	var rec models.WaterLevel
	err := s.db.WithContext(ctx).Where("site = ? AND level = ?", site, level).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s level %d", ErrLevelNotFound, site, level)
		}
		return nil, fmt.Errorf("get %s level %d: %w", site, level, err)
	}
	return &rec, nil
}

func (s *LevelStore) Delete(ctx context.Context, site string, level int) error {
	res := s.db.WithContext(ctx).Where("site = ? AND level = ?", site, level).Delete(&models.WaterLevel{})
	if res.Error != nil {
		return fmt.Errorf("delete %s level %d: %w", site, level, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s level %d", ErrLevelNotFound, site, level)
	}
	return nil
}

// Flooded 点是否位于站点水面内；level 为 0 时检查全部已存水位
func (s *LevelStore) Flooded(ctx context.Context, site string, pt orb.Point, level int) (bool, error) {
	var levels []models.WaterLevel
	if level > 0 {
		rec, err := s.Get(ctx, site, level)
		if err != nil {
			return false, err
		}
		levels = []models.WaterLevel{*rec}
	} else {
		all, err := s.List(ctx, site)
		if err != nil {
			return false, err
		}
		levels = all
	}

	for _, lv := range levels {
		geom, err := lv.Geometry()
		if err != nil {
			return false, err
		}
		if methods.PointFlooded(pt, geom) {
			return true, nil
		}
	}
	return false, nil
}
