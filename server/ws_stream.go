package server

import (
	"net/http"
	"time"

	"Bt1QLooper/cache"
	"Bt1QLooper/logger"
	"Bt1QLooper/model"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MixProgressWSHandler 通过 WebSocket 推送一个混音任务的进度流。
// 任务已经结束时推送 Redis 里的最终快照后关闭连接。
func (h *APIHandler) MixProgressWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	jobID := mux.Vars(r)["id"]
	job, err := h.mixJobRepo.GetJob(jobID)
	if err != nil || job == nil {
		logger.Warn("ws: mix job not found", logger.String("jobId", jobID))
		conn.WriteJSON(map[string]string{"error": "mix job not found"})
		return
	}

	ch, unsubscribe, running := h.jobs.Subscribe(jobID)
	if !running {
		// 任务不在运行中：把最终状态发出去就收工
		progress, err := cache.GetJobProgress(jobID)
		if err != nil || progress == nil {
			progress = &model.MixJobProgress{
				JobID:    jobID,
				Status:   job.Status,
				Finished: true,
			}
			if job.Status == model.MixStatusComplete {
				progress.Ratio = 1
				progress.Total = job.TotalRenderMs
				progress.Elapsed = job.TotalRenderMs
			}
		}
		conn.WriteJSON(progress)
		return
	}
	defer unsubscribe()

	// 客户端断开时结束推送
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-clientGone:
			return
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case p, ok := <-ch:
			if !ok {
				// 渲染协程收尾后订阅通道关闭
				return
			}
			if err := conn.WriteJSON(p); err != nil {
				logger.Debug("ws: write failed", logger.ErrorField(err))
				return
			}
			if p.Finished {
				return
			}
		}
	}
}
