package models

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"gorm.io/datatypes"
)

// WaterLevel 某个站点某一级水位的淹没范围
// Geom 为 WKB 编码的 Polygon 或 MultiPolygon（经纬度）。
type WaterLevel struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Site       string         `gorm:"uniqueIndex:idx_site_level;size:64;not null" json:"site"`
	Level      int            `gorm:"uniqueIndex:idx_site_level;not null" json:"level"`
	Geom       []byte         `gorm:"not null" json:"-"`
	Properties datatypes.JSON `json:"properties"`

	CreatedAt int64 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt int64 `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WaterLevel) TableName() string {
	return "water_levels"
}

// SetGeometry 以 WKB 写入几何
func (w *WaterLevel) SetGeometry(g orb.Geometry) error {
	data, err := wkb.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode wkb: %w", err)
	}
	w.Geom = data
	return nil
}

// Geometry 解码 WKB
func (w *WaterLevel) Geometry() (orb.Geometry, error) {
	g, err := wkb.Unmarshal(w.Geom)
	if err != nil {
		return nil, fmt.Errorf("decode wkb for %s level %d: %w", w.Site, w.Level, err)
	}
	return g, nil
}
