package views

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/GrainArc/HydroMesh/Tin"
	"github.com/GrainArc/HydroMesh/Transformer"
	"github.com/GrainArc/HydroMesh/config"
	"github.com/GrainArc/HydroMesh/logging"
	"github.com/GrainArc/HydroMesh/methods"
	"github.com/GrainArc/HydroMesh/response"
	"github.com/GrainArc/HydroMesh/services"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
)

// WaterController /water 下的全部接口
type WaterController struct {
	water  *services.WaterService
	store  *services.LevelStore
	builds *services.BuildManager
	cfg    *config.Config
	log    logging.Logger
}

func NewWaterController(water *services.WaterService, store *services.LevelStore, builds *services.BuildManager, cfg *config.Config, log logging.Logger) *WaterController {
	if log == nil {
		log = logging.Noop()
	}
	return &WaterController{water: water, store: store, builds: builds, cfg: cfg, log: log}
}

type pointsRequest struct {
	Points [][]float64 `json:"points" binding:"required"`
	Center []float64   `json:"center"`
	Site   string      `json:"site"`
}

type meshRequest struct {
	Geometry json.RawMessage `json:"geometry" binding:"required"`
	Center   []float64       `json:"center"`
	Site     string          `json:"site"`
	Interval float64         `json:"interval"`
}

type crossSectionRequest struct {
	Points      [][]float64 `json:"points" binding:"required"`
	Center      []float64   `json:"center"`
	Site        string      `json:"site"`
	WaterHeight float64     `json:"waterHeight"`
}

type floodedRequest struct {
	Site  string    `json:"site" binding:"required"`
	Point []float64 `json:"point" binding:"required"`
	Level int       `json:"level"`
}

type saveLevelRequest struct {
	Level      int                    `json:"level" binding:"required"`
	Geometry   json.RawMessage        `json:"geometry" binding:"required"`
	Properties map[string]interface{} `json:"properties"`
}

// writeError 按错误类型选择状态码
func (w *WaterController) writeError(c *gin.Context, err error) {
	var pe *Transformer.ProjectionError
	var ge *Tin.GeometryError
	switch {
	case errors.As(err, &pe), errors.As(err, &ge),
		errors.Is(err, Transformer.ErrInvalidGeoJSON),
		errors.Is(err, Transformer.ErrUnsupportedGeometry),
		errors.Is(err, Transformer.ErrEmptyGeometry),
		errors.Is(err, Tin.ErrInvalidInterval),
		errors.Is(err, Tin.ErrGridTooLarge):
		response.BadRequest(c, err.Error())
	case errors.Is(err, config.ErrUnknownSite),
		errors.Is(err, services.ErrLevelNotFound),
		errors.Is(err, services.ErrLevelOutOfRange),
		errors.Is(err, services.ErrLevelMissing),
		errors.Is(err, services.ErrTaskNotFound):
		response.NotFound(c, err.Error())
	default:
		ctx := c.Request.Context()
		logging.FromContext(ctx, w.log).Error(ctx, "request failed", logging.String("path", c.FullPath()), logging.Err(err))
		response.InternalError(c, err.Error())
	}
}

// resolveCenter 请求中的 center 优先，其次是站点中心，都没有时使用 (0, 0)
func (w *WaterController) resolveCenter(center []float64, site string) (Transformer.GeoPoint, error) {
	if len(center) > 0 {
		if len(center) < 2 {
			return Transformer.GeoPoint{}, fmt.Errorf("%w: center needs [lng, lat]", Transformer.ErrInvalidGeoJSON)
		}
		return Transformer.GeoPoint{Lng: center[0], Lat: center[1]}, nil
	}
	if site != "" {
		s, err := w.cfg.Site(site)
		if err != nil {
			return Transformer.GeoPoint{}, err
		}
		return Transformer.GeoPoint{Lng: s.Center[0], Lat: s.Center[1]}, nil
	}
	return Transformer.GeoPoint{}, nil
}

func (w *WaterController) siteParam(c *gin.Context) (string, config.SiteConfig, bool) {
	name := c.Param("site")
	s, err := w.cfg.Site(name)
	if err != nil {
		w.writeError(c, err)
		return "", config.SiteConfig{}, false
	}
	return name, s, true
}

func levelParam(c *gin.Context) (int, bool) {
	level, err := strconv.Atoi(c.Param("level"))
	if err != nil {
		response.BadRequest(c, "level must be an integer")
		return 0, false
	}
	return level, true
}

// Project 经纬度 → 局部平面
func (w *WaterController) Project(c *gin.Context) {
	var req pointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}
	center, err := w.resolveCenter(req.Center, req.Site)
	if err != nil {
		w.writeError(c, err)
		return
	}
	frame, err := Transformer.NewLocalFrame(center)
	if err != nil {
		w.writeError(c, err)
		return
	}
	geo, err := Transformer.CoordsToGeoPoints(req.Points)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	planar, err := frame.ProjectRing(geo)
	if err != nil {
		w.writeError(c, err)
		return
	}
	out := make([][2]float64, len(planar))
	for i, p := range planar {
		out[i] = [2]float64{p.X, p.Z}
	}
	response.Success(c, gin.H{"points": out})
}

// Unproject 局部平面 → 经纬度
func (w *WaterController) Unproject(c *gin.Context) {
	var req pointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}
	center, err := w.resolveCenter(req.Center, req.Site)
	if err != nil {
		w.writeError(c, err)
		return
	}
	frame, err := Transformer.NewLocalFrame(center)
	if err != nil {
		w.writeError(c, err)
		return
	}
	out := make([][2]float64, len(req.Points))
	for i, p := range req.Points {
		if len(p) < 2 {
			response.BadRequest(c, fmt.Sprintf("point %d needs [x, z]", i))
			return
		}
		g := frame.FromLocal(Transformer.PlanarPoint{X: p[0], Z: p[1]})
		out[i] = [2]float64{g.Lng, g.Lat}
	}
	response.Success(c, gin.H{"points": out})
}

// Mesh GeoJSON → 水面网格，MultiPolygon 每个多边形一个网格
func (w *WaterController) Mesh(c *gin.Context) {
	var req meshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}
	center, err := w.resolveCenter(req.Center, req.Site)
	if err != nil {
		w.writeError(c, err)
		return
	}
	meshes, err := w.water.BuildMesh(c.Request.Context(), req.Geometry, center, req.Interval)
	if err != nil {
		w.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"meshes": meshes})
}

// CrossSection 剖面面片与同一三角网上的水面
func (w *WaterController) CrossSection(c *gin.Context) {
	var req crossSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}
	center, err := w.resolveCenter(req.Center, req.Site)
	if err != nil {
		w.writeError(c, err)
		return
	}
	cs, err := w.water.BuildCrossSection(req.Points, center, req.WaterHeight)
	if err != nil {
		var pe *Transformer.ProjectionError
		if errors.As(err, &pe) || errors.Is(err, Transformer.ErrNonFinite) {
			w.writeError(c, err)
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, cs)
}

// Flooded 点是否被水面覆盖
func (w *WaterController) Flooded(c *gin.Context) {
	var req floodedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Point) < 2 {
		response.BadRequest(c, "point needs [lng, lat]")
		return
	}
	if _, err := w.cfg.Site(req.Site); err != nil {
		w.writeError(c, err)
		return
	}
	flooded, err := w.store.Flooded(c.Request.Context(), req.Site, orb.Point{req.Point[0], req.Point[1]}, req.Level)
	if err != nil {
		w.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"flooded": flooded})
}

func (w *WaterController) ListSites(c *gin.Context) {
	response.Success(c, gin.H{"sites": w.cfg.SiteNames()})
}

// GetSite 站点中心、水位级数和水面材质参数
func (w *WaterController) GetSite(c *gin.Context) {
	name, s, ok := w.siteParam(c)
	if !ok {
		return
	}
	_, built := w.water.Table(name)
	response.Success(c, gin.H{
		"name":   name,
		"center": s.Center,
		"levels": s.Levels,
		"water":  s.Water,
		"built":  built,
	})
}

// ListLevels 已保存的水位多边形（GeoJSON）
func (w *WaterController) ListLevels(c *gin.Context) {
	name, _, ok := w.siteParam(c)
	if !ok {
		return
	}
	levels, err := w.store.List(c.Request.Context(), name)
	if err != nil {
		w.writeError(c, err)
		return
	}
	fc, err := methods.LevelsToFeatureCollection(levels)
	if err != nil {
		w.writeError(c, err)
		return
	}
	response.Success(c, fc)
}

// SaveLevel 保存或覆盖某一级水位多边形
func (w *WaterController) SaveLevel(c *gin.Context) {
	name, s, ok := w.siteParam(c)
	if !ok {
		return
	}
	var req saveLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.Level < 1 || req.Level > s.Levels {
		response.BadRequest(c, fmt.Sprintf("level must be between 1 and %d", s.Levels))
		return
	}
	polygons, err := Transformer.ParsePolygons(req.Geometry)
	if err != nil {
		w.writeError(c, err)
		return
	}
	rec, err := w.store.Save(c.Request.Context(), name, req.Level, methods.PolygonsToGeometry(polygons), req.Properties)
	if err != nil {
		w.writeError(c, err)
		return
	}
	response.SuccessWithMessage(c, "保存成功", gin.H{
		"site":     rec.Site,
		"level":    rec.Level,
		"polygons": len(polygons),
	})
}

func (w *WaterController) DeleteLevel(c *gin.Context) {
	name, _, ok := w.siteParam(c)
	if !ok {
		return
	}
	level, ok := levelParam(c)
	if !ok {
		return
	}
	if err := w.store.Delete(c.Request.Context(), name, level); err != nil {
		w.writeError(c, err)
		return
	}
	response.SuccessWithMessage(c, "删除成功", gin.H{"site": name, "level": level})
}

// StartBuild 后台预计算站点全部水位，进度通过 /water/ws 推送
func (w *WaterController) StartBuild(c *gin.Context) {
	task, err := w.builds.Start(c.Param("site"))
	if err != nil {
		w.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"taskId":  task.ID,
		"message": "build task created, connect to websocket for progress",
	})
}

func (w *WaterController) GetTask(c *gin.Context) {
	task, ok := w.builds.GetTask(c.Param("taskId"))
	if !ok {
		w.writeError(c, fmt.Errorf("%w: %s", services.ErrTaskNotFound, c.Param("taskId")))
		return
	}
	response.Success(c, task)
}

// TaskWebSocket 任务进度推送
func (w *WaterController) TaskWebSocket(c *gin.Context) {
	taskID := c.Query("taskId")
	if taskID == "" {
		response.BadRequest(c, "taskId is required")
		return
	}
	if _, ok := w.builds.GetTask(taskID); !ok {
		w.writeError(c, fmt.Errorf("%w: %s", services.ErrTaskNotFound, taskID))
		return
	}
	if err := w.builds.ServeProgress(c.Writer, c.Request, taskID); err != nil {
		// 升级失败时 upgrader 已经写过响应
		ctx := c.Request.Context()
		logging.FromContext(ctx, w.log).Warn(ctx, "websocket upgrade failed", logging.Err(err))
	}
}

// LevelMesh 预计算好的某一级水位网格
func (w *WaterController) LevelMesh(c *gin.Context) {
	name, _, ok := w.siteParam(c)
	if !ok {
		return
	}
	level, ok := levelParam(c)
	if !ok {
		return
	}
	table, built := w.water.Table(name)
	if !built {
		response.NotFound(c, fmt.Sprintf("levels of site %s have not been built", name))
		return
	}
	meshes, err := table.Mesh(level)
	if err != nil {
		w.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"level": level, "meshes": meshes})
}
