package models

import "time"

type CommandAction string

const (
	CommandStart CommandAction = "start"
	CommandClear CommandAction = "clear"
)

// DetectionStatus состояние задачи детекции
type DetectionStatus string

const (
	StatusIdle      DetectionStatus = "idle"
	StatusDetecting DetectionStatus = "detecting"
	StatusDone      DetectionStatus = "done"
	StatusError     DetectionStatus = "error"
)

// Terminal reports whether polling has nothing left to do in this status.
func (s DetectionStatus) Terminal() bool {
	return s != StatusDetecting
}

// Remote task states reported by the backend /status endpoint.
const (
	TaskStateProcessing = "processing"
	TaskStateCompleted  = "completed"
	TaskStateFailed     = "failed"
)

// Detection представляет структуру одного обнаруженного объекта
type Detection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2] in source video pixels
}

type ViolationFrame struct {
	Time       float64     `json:"time"`
	FrameIndex int         `json:"frameIndex"`
	Detections []Detection `json:"detections"`
}

// Violation is one continuous flagged interval of the video.
type Violation struct {
	StartTime float64          `json:"startTime"`
	EndTime   float64          `json:"endTime"`
	Type      string           `json:"type"`
	Frames    []ViolationFrame `json:"frames"`
}

// Segment is the backend's raw flagged region, expressed in frames.
type Segment struct {
	FrameStart int       `json:"frameStart"`
	FrameEnd   int       `json:"frameEnd"`
	Label      string    `json:"label,omitempty"`
	BBox       []float64 `json:"bbox,omitempty"`
}

type RawResult struct {
	Segments    []Segment `json:"segments,omitempty"`
	FPS         float64   `json:"fps,omitempty"`
	TotalFrames int       `json:"totalFrames,omitempty"`
	Width       float64   `json:"width,omitempty"`
	Height      float64   `json:"height,omitempty"`
}

type Task struct {
	TaskID    string `json:"taskId"`
	VideoPath string `json:"videoPath"`
}

type SubmitRequest struct {
	TaskID    string `json:"taskId"`
	InputPath string `json:"inputPath"`
	Detector  string `json:"detector"`
}

type SubmitResponse struct {
	TaskID string `json:"taskId"`
	Error  string `json:"error,omitempty"`
}

type UploadResponse struct {
	FilePath string `json:"filePath"`
	Error    string `json:"error,omitempty"`
}

// StatusResponse ответ /status/{taskId}
type StatusResponse struct {
	State    string     `json:"state"`
	Progress *float64   `json:"progress,omitempty"` // fraction in [0,1]
	Result   *RawResult `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// DetectionCommand приходит из Kafka
type DetectionCommand struct {
	Action    CommandAction `json:"action"`
	VideoPath string        `json:"video_path"`
	TaskID    string        `json:"task_id,omitempty"`
	Detector  string        `json:"detector,omitempty"`
}

// StatusEvent публикуется при каждом изменении состояния
type StatusEvent struct {
	Generation uint64          `json:"generation"`
	TaskID     string          `json:"task_id"`
	VideoPath  string          `json:"video_path"`
	Status     DetectionStatus `json:"status"`
	Progress   int             `json:"progress"`
	Violations int             `json:"violations"`
	Error      string          `json:"error,omitempty"`
	TimeStamp  time.Time       `json:"timestamp"`
}
