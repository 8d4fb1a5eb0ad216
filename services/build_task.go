package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GrainArc/HydroMesh/config"
	"github.com/GrainArc/HydroMesh/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrTaskNotFound = errors.New("task not found")

const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// BuildTask 一次站点水位预计算
type BuildTask struct {
	ID          string     `json:"id"`
	Site        string     `json:"site"`
	Status      string     `json:"status"` // pending, running, completed, failed
	Progress    float64    `json:"progress"`
	TotalLevels int        `json:"totalLevels"`
	BuiltLevels int        `json:"builtLevels"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// ProgressMessage WebSocket 进度消息
type ProgressMessage struct {
	Type     string      `json:"type"` // progress, completed, error
	TaskID   string      `json:"taskId"`
	Progress float64     `json:"progress"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
}

type taskEntry struct {
	mu   sync.Mutex
	task BuildTask
}

func (e *taskEntry) snapshot() BuildTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task
}

func (e *taskEntry) update(fn func(t *BuildTask)) BuildTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.task)
	return e.task
}

// BuildManager 后台执行 BuildLevels，并通过 WebSocket 推送进度
type BuildManager struct {
	water *WaterService
	store *LevelStore
	sites map[string]config.SiteConfig
	log   logging.Logger

	timeout   time.Duration
	retention time.Duration // 任务结束后保留多久再从内存中移除
	tasks     sync.Map // taskID -> *taskEntry
	wsClients sync.Map // taskID -> *sync.Map[*websocket.Conn]
	wsWriteMu sync.Mutex
	upgrader  websocket.Upgrader
}

func NewBuildManager(water *WaterService, store *LevelStore, sites map[string]config.SiteConfig, log logging.Logger) *BuildManager {
	if log == nil {
		log = logging.Noop()
	}
	return &BuildManager{
		water:   water,
		store:   store,
		sites:   sites,
		log:     log,
		timeout:   30 * time.Minute,
		retention: 10 * time.Minute,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Start 创建任务并在后台执行
func (m *BuildManager) Start(site string) (BuildTask, error) {
	siteCfg, ok := m.sites[site]
	if !ok {
		return BuildTask{}, fmt.Errorf("%w: %s", config.ErrUnknownSite, site)
	}

	entry := &taskEntry{task: BuildTask{
		ID:        uuid.NewString(),
		Site:      site,
		Status:    TaskPending,
		CreatedAt: time.Now(),
	}}
	m.tasks.Store(entry.task.ID, entry)

	go m.execute(entry, siteCfg)
	return entry.snapshot(), nil
}

func (m *BuildManager) execute(entry *taskEntry, siteCfg config.SiteConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	defer m.scheduleCleanup(entry.snapshot().ID)

	task := entry.update(func(t *BuildTask) {
		now := time.Now()
		t.Status = TaskRunning
		t.StartedAt = &now
		t.Message = "loading water levels..."
	})
	ctx, log := logging.WithRequestLogger(ctx, m.log.With(logging.String("task_id", task.ID), logging.String("site", task.Site)))
	m.broadcast(task.ID, ProgressMessage{Type: "progress", TaskID: task.ID, Message: task.Message, Data: task})

	levels, err := m.store.List(ctx, task.Site)
	if err != nil {
		log.Error(ctx, "load levels failed", logging.Err(err))
		m.failTask(entry, err.Error())
		return
	}
	task = entry.update(func(t *BuildTask) {
		t.TotalLevels = len(levels)
		t.Message = "building meshes..."
	})

	_, err = m.water.BuildLevels(ctx, task.Site, siteCfg, levels, func(done, total int) {
		t := entry.update(func(t *BuildTask) {
			t.BuiltLevels = done
			if total > 0 {
				t.Progress = float64(done) / float64(total) * 100
			}
		})
		m.broadcast(t.ID, ProgressMessage{Type: "progress", TaskID: t.ID, Progress: t.Progress, Message: t.Message, Data: t})
	})
	if err != nil {
		log.Error(ctx, "build levels failed", logging.Err(err))
		m.failTask(entry, err.Error())
		return
	}

	task = entry.update(func(t *BuildTask) {
		now := time.Now()
		t.Status = TaskCompleted
		t.Progress = 100
		t.CompletedAt = &now
		t.Message = fmt.Sprintf("built %d levels", t.TotalLevels)
	})
	log.Info(ctx, "build task completed", logging.Int("levels", task.TotalLevels))
	m.broadcast(task.ID, ProgressMessage{Type: "completed", TaskID: task.ID, Progress: 100, Message: task.Message, Data: task})
}

func (m *BuildManager) failTask(entry *taskEntry, message string) {
	task := entry.update(func(t *BuildTask) {
		now := time.Now()
		t.Status = TaskFailed
		t.Message = message
		t.CompletedAt = &now
	})
	m.broadcast(task.ID, ProgressMessage{Type: "error", TaskID: task.ID, Progress: task.Progress, Message: message, Data: task})
}

func (m *BuildManager) scheduleCleanup(taskID string) {
	time.AfterFunc(m.retention, func() { m.removeTask(taskID) })
}

// removeTask 删除任务并关闭仍在监听它的连接
func (m *BuildManager) removeTask(taskID string) {
	m.tasks.Delete(taskID)
	clientsVal, ok := m.wsClients.LoadAndDelete(taskID)
	if !ok {
		return
	}
	clientsVal.(*sync.Map).Range(func(key, _ interface{}) bool {
		key.(*websocket.Conn).Close()
		return true
	})
}

// GetTask 任务状态快照
func (m *BuildManager) GetTask(taskID string) (BuildTask, bool) {
	if v, ok := m.tasks.Load(taskID); ok {
		return v.(*taskEntry).snapshot(), true
	}
	return BuildTask{}, false
}

// ServeProgress 升级为 WebSocket，先发送当前状态，之后推送进度直到客户端断开
func (m *BuildManager) ServeProgress(w http.ResponseWriter, r *http.Request, taskID string) error {
	v, ok := m.tasks.Load(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}
	m.registerWSClient(taskID, conn)
	if _, ok := m.tasks.Load(taskID); !ok {
		// 升级期间任务已被清理
		m.removeTask(taskID)
		return nil
	}

	task := v.(*taskEntry).snapshot()
	m.send(conn, ProgressMessage{Type: "progress", TaskID: task.ID, Progress: task.Progress, Message: task.Message, Data: task})

	go m.handleWSConnection(taskID, conn)
	return nil
}

func (m *BuildManager) registerWSClient(taskID string, conn *websocket.Conn) {
	clientsVal, _ := m.wsClients.LoadOrStore(taskID, &sync.Map{})
	clientsVal.(*sync.Map).Store(conn, true)
}

func (m *BuildManager) unregisterWSClient(taskID string, conn *websocket.Conn) {
	if clientsVal, ok := m.wsClients.Load(taskID); ok {
		clientsVal.(*sync.Map).Delete(conn)
	}
	conn.Close()
}

// handleWSConnection 读到错误即认为客户端已断开
func (m *BuildManager) handleWSConnection(taskID string, conn *websocket.Conn) {
	defer m.unregisterWSClient(taskID, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *BuildManager) broadcast(taskID string, msg ProgressMessage) {
	clientsVal, ok := m.wsClients.Load(taskID)
	if !ok {
		return
	}
	clientsVal.(*sync.Map).Range(func(key, _ interface{}) bool {
		conn := key.(*websocket.Conn)
		if err := m.send(conn, msg); err != nil {
			m.unregisterWSClient(taskID, conn)
		}
		return true
	})
}

// send 同一连接不允许并发写
func (m *BuildManager) send(conn *websocket.Conn, msg ProgressMessage) error {
	m.wsWriteMu.Lock()
	defer m.wsWriteMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}
