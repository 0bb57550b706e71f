package server

import (
	"encoding/json"
	"net/http"
)

// adminConfig 部分更新载荷：只修改出现的字段
type adminConfig struct {
	Step             *float64 `json:"step,omitempty"`
	MaxInputsPerTick *int     `json:"maxInputsPerTick,omitempty"`
	SimulateDropProb *float64 `json:"simulateDropProb,omitempty"`
}

// handleAdminConfig 提供房间配置的读取与更新（热更新基本规则）
// GET /admin/config  返回当前配置
// POST /admin/config 以 JSON 载荷更新部分字段
func (s *Server) handleAdminConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.room.Settings())
	case http.MethodPost:
		var body adminConfig
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.Step != nil && *body.Step < 0 {
			http.Error(w, "step must be >= 0", http.StatusBadRequest)
			return
		}
		if body.MaxInputsPerTick != nil && *body.MaxInputsPerTick < 0 {
			http.Error(w, "maxInputsPerTick must be >= 0", http.StatusBadRequest)
			return
		}
		if p := body.SimulateDropProb; p != nil && (*p < 0 || *p > 1) {
			http.Error(w, "simulateDropProb must be within [0,1]", http.StatusBadRequest)
			return
		}

		cur := s.room.UpdateSettings(func(st *Settings) {
			if body.Step != nil {
				st.Step = *body.Step
			}
			if body.MaxInputsPerTick != nil {
				st.MaxInputsPerTick = *body.MaxInputsPerTick
			}
			if body.SimulateDropProb != nil {
				st.SimulateDropProb = *body.SimulateDropProb
			}
		})
		s.log.Infof("config updated: room=%s step=%.2f maxInputsPerTick=%d drop=%.2f",
			s.room.Code, cur.Step, cur.MaxInputsPerTick, cur.SimulateDropProb)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": cur})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMetrics 输出房间的运行指标
// GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    s.room.Code,
		"tick":    s.room.TickSeq(),
		"metrics": s.room.Metrics().Snapshot(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
