package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "godot_host_dispatch_queue_depth",
			Help: "Number of tasks waiting for the engine thread.",
		},
	)

	queueWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "godot_host_dispatch_wait_seconds",
			Help:    "Time a task spent queued before the engine thread picked it up, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godot_host_tasks_total",
			Help: "Total number of engine-thread tasks by label and final status.",
		},
		[]string{"label", "status"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "godot_host_task_duration_seconds",
			Help:    "Engine-thread task run time, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"label"},
	)

	framesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "godot_host_frames_total",
			Help: "Total number of frames iterated by the frame loop.",
		},
	)

	instanceRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "godot_host_instance_running",
			Help: "1 while an engine instance is live, otherwise 0.",
		},
	)

	instancePaused = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "godot_host_instance_paused",
			Help: "1 while the frame loop is paused, otherwise 0.",
		},
	)
)

func init() {
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(queueWait)
	prometheus.MustRegister(tasksTotal)
	prometheus.MustRegister(taskDuration)
	prometheus.MustRegister(framesTotal)
	prometheus.MustRegister(instanceRunning)
	prometheus.MustRegister(instancePaused)
}
