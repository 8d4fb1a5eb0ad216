package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GrainArc/HydroMesh/config"
	"github.com/gorilla/websocket"
)

func waitForTask(t *testing.T, m *BuildManager, id string) BuildTask {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := m.GetTask(id)
		if !ok {
			t.Fatalf("task %s disappeared", id)
		}
		if task.Status == TaskCompleted || task.Status == TaskFailed {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return BuildTask{}
}

func newTestManager(t *testing.T) (*BuildManager, *WaterService) {
	t.Helper()
	store := newTestStore(t)
	ctx := context.Background()
	for level := 1; level <= 2; level++ {
		if _, err := store.Save(ctx, "creek", level, lakePolygon(float64(level)*0.0001), nil); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	water := NewWaterService(config.MeshConfig{Workers: 2}, nil, nil, nil)
	sites := map[string]config.SiteConfig{
		"creek": {Center: [2]float64{lakeCenter.Lng, lakeCenter.Lat}, Levels: 2},
	}
	return NewBuildManager(water, store, sites, nil), water
}

func TestBuildManagerCompletes(t *testing.T) {
	m, water := newTestManager(t)

	task, err := m.Start("creek")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if task.ID == "" || task.Site != "creek" {
		t.Fatalf("unexpected task %+v", task)
	}

	done := waitForTask(t, m, task.ID)
	if done.Status != TaskCompleted {
		t.Fatalf("task status = %s (%s)", done.Status, done.Message)
	}
	if done.TotalLevels != 2 || done.BuiltLevels != 2 || done.Progress != 100 {
		t.Fatalf("unexpected final task %+v", done)
	}
	table, ok := water.Table("creek")
	if !ok || table.Levels() != 2 {
		t.Fatalf("level table not published")
	}
}

func TestBuildManagerRemovesFinishedTasks(t *testing.T) {
	m, _ := newTestManager(t)
	m.retention = 20 * time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.ServeProgress(w, r, r.URL.Query().Get("taskId"))
	}))
	defer srv.Close()

	task, err := m.Start("creek")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/?taskId="+task.ID, nil)
	if err != nil {
		// 任务可能已经被清理，此时连接会被拒绝
		t.Logf("Dial: %v", err)
	} else {
		defer conn.Close()
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		_, taskLeft := m.GetTask(task.ID)
		_, clientsLeft := m.wsClients.Load(task.ID)
		if !taskLeft && !clientsLeft {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("finished task %s was never removed", task.ID)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// 被清理的任务的连接随之关闭
	if conn != nil {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
					t.Fatalf("connection to removed task stayed open")
				}
				break
			}
		}
	}
}

func TestBuildManagerUnknown(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Start("nowhere"); !errors.Is(err, config.ErrUnknownSite) {
		t.Fatalf("expected ErrUnknownSite, got %v", err)
	}
	if _, ok := m.GetTask("missing"); ok {
		t.Fatalf("unknown task reported as present")
	}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws?taskId=missing", nil)
	if err := m.ServeProgress(w, r, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestBuildManagerWebSocket(t *testing.T) {
	m, _ := newTestManager(t)
	task, err := m.Start("creek")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForTask(t, m, task.ID)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.ServeProgress(w, r, r.URL.Query().Get("taskId")); err != nil {
			t.Errorf("ServeProgress: %v", err)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?taskId=" + task.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg ProgressMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.TaskID != task.ID || msg.Progress != 100 {
		t.Fatalf("unexpected first message %+v", msg)
	}
}
