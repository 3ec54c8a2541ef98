package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/detection"
)

// startRequest accepts inputPath as an alias of videoPath.
type startRequest struct {
	VideoPath string `json:"videoPath"`
	InputPath string `json:"inputPath"`
	TaskID    string `json:"taskId"`
	Detector  string `json:"detector"`
}

// StartDetectionHandler запускает детекцию для видео, уже доступного бэкенду
func (h *Handlers) StartDetectionHandler(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	videoPath := strings.TrimSpace(req.VideoPath)
	if videoPath == "" {
		videoPath = strings.TrimSpace(req.InputPath)
	}
	if videoPath == "" {
		http.Error(w, "videoPath is required", http.StatusBadRequest)
		return
	}

	status := http.StatusAccepted
	err := h.controller.Start(r.Context(), detection.Request{
		TaskID:    strings.TrimSpace(req.TaskID),
		VideoPath: videoPath,
		Detector:  strings.TrimSpace(req.Detector),
	})
	if err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, h.controller.Snapshot())
}

// UploadDetectionHandler загружает видео на бэкенд и запускает детекцию
func (h *Handlers) UploadDetectionHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(50 << 20); err != nil {
		http.Error(w, "Could not parse multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Video file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size == 0 {
		http.Error(w, "Video file is empty", http.StatusBadRequest)
		return
	}

	req := detection.Request{
		TaskID:   strings.TrimSpace(r.FormValue("taskId")),
		Detector: strings.TrimSpace(r.FormValue("detector")),
	}

	status := http.StatusAccepted
	if err := h.controller.StartFromFile(r.Context(), header.Filename, file, req); err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, h.controller.Snapshot())
}
