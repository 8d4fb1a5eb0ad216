package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GrainArc/HydroMesh/Tin"
	"github.com/GrainArc/HydroMesh/Transformer"
	"github.com/GrainArc/HydroMesh/config"
	"github.com/GrainArc/HydroMesh/logging"
	"github.com/GrainArc/HydroMesh/methods"
	"github.com/GrainArc/HydroMesh/metrics"
	"github.com/GrainArc/HydroMesh/models"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

var (
	ErrLevelOutOfRange = errors.New("water level out of range")
	ErrLevelMissing    = errors.New("water level has no polygon")
)

// LevelTable 一个站点各级水位预先生成的网格，下标 level-1
// 构建完成后只读。
type LevelTable struct {
	Site    string
	BuiltAt time.Time
	meshes  [][]*Tin.MeshBuffers
}

// Levels 水位级数
func (t *LevelTable) Levels() int {
	return len(t.meshes)
}

// Mesh 第 level 级（从 1 开始）的网格，多面的水位每个多边形一个网格
func (t *LevelTable) Mesh(level int) ([]*Tin.MeshBuffers, error) {
	if level < 1 || level > len(t.meshes) {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrLevelOutOfRange, level, len(t.meshes))
	}
	m := t.meshes[level-1]
	if m == nil {
		return nil, fmt.Errorf("%w: %s level %d", ErrLevelMissing, t.Site, level)
	}
	return m, nil
}

// WaterService 几何 → 水面网格
type WaterService struct {
	cfg     config.MeshConfig
	cache   *MeshCache
	metrics *metrics.Collector
	log     logging.Logger

	mu     sync.RWMutex
	tables map[string]*LevelTable
}

// NewWaterService cache、metrics 可以为 nil；MaxSamples 为 0 时使用 Tin.DefaultMaxSamples，负数不限制
func NewWaterService(cfg config.MeshConfig, cache *MeshCache, m *metrics.Collector, log logging.Logger) *WaterService {
	if cfg.Interval <= 0 {
		cfg.Interval = Tin.DefaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxSamples == 0 {
		cfg.MaxSamples = Tin.DefaultMaxSamples
	}
	if log == nil {
		log = logging.Noop()
	}
	return &WaterService{
		cfg:     cfg,
		cache:   cache,
		metrics: m,
		log:     log,
		tables:  make(map[string]*LevelTable),
	}
}

// BuildMesh 解析 GeoJSON 并为其中每个多边形构网
// interval 为 0 时使用配置中的间距。
func (s *WaterService) BuildMesh(ctx context.Context, geometry []byte, center Transformer.GeoPoint, interval float64) ([]*Tin.MeshBuffers, error) {
	polygons, err := Transformer.ParsePolygons(geometry)
	if err != nil {
		return nil, err
	}
	return s.BuildPolygons(ctx, polygons, center, interval)
}

// BuildPolygons 在以 center 为原点的局部坐标系中逐个构网
func (s *WaterService) BuildPolygons(ctx context.Context, polygons []orb.Polygon, center Transformer.GeoPoint, interval float64) ([]*Tin.MeshBuffers, error) {
	frame, err := Transformer.NewLocalFrame(center)
	if err != nil {
		return nil, err
	}
	out := make([]*Tin.MeshBuffers, 0, len(polygons))
	for i, poly := range polygons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := s.buildPolygon(ctx, frame, poly, interval)
		if err != nil {
			if len(polygons) > 1 {
				return nil, fmt.Errorf("polygon %d: %w", i, err)
			}
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *WaterService) buildPolygon(ctx context.Context, frame Transformer.LocalFrame, poly orb.Polygon, interval float64) (*Tin.MeshBuffers, error) {
	if interval == 0 {
		interval = s.cfg.Interval
	}
	if len(poly) == 0 {
		return nil, Transformer.ErrEmptyGeometry
	}

	outer, err := frame.ProjectRing(Transformer.RingToGeoPoints(poly[0]))
	if err != nil {
		return nil, fmt.Errorf("outer ring: %w", err)
	}
	rings := [][]Transformer.PlanarPoint{outer}
	var holes []Tin.Polygon
	if s.cfg.HonorHoles {
		for i, r := range poly[1:] {
			h, err := frame.ProjectRing(Transformer.RingToGeoPoints(r))
			if err != nil {
				return nil, fmt.Errorf("hole %d: %w", i+1, err)
			}
			holes = append(holes, h)
			rings = append(rings, h)
		}
	}

	key := methods.MeshKey(rings, interval, s.cfg.HonorHoles, s.cfg.ValidateSimple)
	if s.cache != nil {
		if m, ok := s.cache.Get(key); ok {
			s.metrics.CacheHit()
			return m, nil
		}
		s.metrics.CacheMiss()
	}

	opts := []Tin.MeshOption{Tin.WithInterval(interval), Tin.WithMaxSamples(s.cfg.MaxSamples)}
	if len(holes) > 0 {
		opts = append(opts, Tin.WithHoles(holes...))
	}
	if s.cfg.ValidateSimple {
		opts = append(opts, Tin.WithValidation())
	}

	start := time.Now()
	m, err := Tin.BuildWaterMesh(outer, opts...)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveMeshBuild(elapsed, 0, err)
		return nil, err
	}
	s.metrics.ObserveMeshBuild(elapsed, m.TriangleCount(), nil)
	logging.FromContext(ctx, s.log).Debug(ctx, "water mesh built",
		logging.Int("vertices", m.VertexCount()),
		logging.Int("triangles", m.TriangleCount()),
		logging.Any("area_m2", methods.RingArea(outer)),
		logging.Any("elapsed", elapsed),
	)

	if s.cache != nil {
		s.cache.Set(key, m)
		s.metrics.SetCacheEntries(s.cache.Size())
	}
	return m, nil
}

// BuildCrossSection 剖面点为 [lng, lat, 高程]
func (s *WaterService) BuildCrossSection(points [][]float64, center Transformer.GeoPoint, waterHeight float64) (*Tin.CrossSection, error) {
	frame, err := Transformer.NewLocalFrame(center)
	if err != nil {
		return nil, err
	}
	pts := make([]Tin.Point3, len(points))
	for i, c := range points {
		if len(c) < 3 {
			return nil, fmt.Errorf("point %d: need [lng, lat, altitude], got %d values", i, len(c))
		}
		q, err := frame.ToLocal(Transformer.GeoPoint{Lng: c[0], Lat: c[1]})
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		pts[i] = Tin.Point3{X: q.X, Y: c[2], Z: q.Z}
	}
	return Tin.BuildCrossSection(pts, waterHeight)
}

// BuildLevels 并发生成站点的全部水位网格，成功后替换该站点的 LevelTable
// progress 在每完成一级后调用，可以为 nil。
func (s *WaterService) BuildLevels(ctx context.Context, site string, siteCfg config.SiteConfig, levels []models.WaterLevel, progress func(done, total int)) (*LevelTable, error) {
	center := Transformer.GeoPoint{Lng: siteCfg.Center[0], Lat: siteCfg.Center[1]}
	count := siteCfg.Levels
	for _, lv := range levels {
		if lv.Level < 1 {
			return nil, fmt.Errorf("%w: %d", ErrLevelOutOfRange, lv.Level)
		}
		if lv.Level > count {
			count = lv.Level
		}
	}
	table := &LevelTable{Site: site, meshes: make([][]*Tin.MeshBuffers, count)}

	var done int32
	total := len(levels)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range levels {
		lv := levels[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			geom, err := lv.Geometry()
			if err != nil {
				return err
			}
			polygons, err := Transformer.PolygonsFromGeometry(geom)
			if err != nil {
				return fmt.Errorf("level %d: %w", lv.Level, err)
			}
			meshes, err := s.BuildPolygons(gctx, polygons, center, 0)
			if err != nil {
				return fmt.Errorf("level %d: %w", lv.Level, err)
			}
			// 每个 goroutine 只写自己的下标
			table.meshes[lv.Level-1] = meshes
			s.metrics.LevelBuilt(site)
			if progress != nil {
				progress(int(atomic.AddInt32(&done, 1)), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table.BuiltAt = time.Now()
	s.mu.Lock()
	s.tables[site] = table
	s.mu.Unlock()
	s.log.Info(ctx, "water levels built", logging.String("site", site), logging.Int("levels", total))
	return table, nil
}

// Table 站点当前的 LevelTable
func (s *WaterService) Table(site string) (*LevelTable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[site]
	return t, ok
}
