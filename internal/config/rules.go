package config

// RuleOverrides is the single static configuration surface every rule
// table is built from - no domain analyzer embeds a literal threshold
// inline. Every numeric threshold referenced by an analyzer pass must
// trace back to a field here.
type RuleOverrides struct {
	CompactionScore CompactionScoreBand `yaml:"compaction_score"`
	ThreadConfig    ThreadConfigBand    `yaml:"thread_config"`
	TaskExecution   TaskExecutionBand   `yaml:"task_execution"`
	FEConfig        FEConfigBand        `yaml:"fe_config"`
	QueueBacklog    QueueBacklogBand    `yaml:"queue_backlog"`
	Memory          MemoryBand          `yaml:"memory"`
	QueryPerf       QueryPerfBand       `yaml:"query_performance"`
	Operations      OperationsBand      `yaml:"operations"`
	ProfileWait     ProfileWaitBand     `yaml:"profile_wait"`
}

// CompactionScoreBand classifies a partition's MAX_CS.
type CompactionScoreBand struct {
	Excellent float64 `yaml:"excellent_below"`
	Normal    float64 `yaml:"normal_below"`
	Warning   float64 `yaml:"warning_at_or_above"`
	Critical  float64 `yaml:"critical_at_or_above"`
	Emergency float64 `yaml:"emergency_at_or_above"`
}

// ThreadConfigBand bounds compaction thread sizing recommendations.
type ThreadConfigBand struct {
	MinPerCore float64 `yaml:"min_per_core"`
	MaxPerCore float64 `yaml:"max_per_core"`
	AbsMin     int     `yaml:"abs_min"`
	AbsMax     int     `yaml:"abs_max"`
}

// TaskExecutionBand bounds per-node task health expectations.
type TaskExecutionBand struct {
	MaxHealthyTasksPerNode int     `yaml:"max_healthy_tasks_per_node"`
	SlowThresholdHours     float64 `yaml:"slow_threshold_h"`
	MaxRetry               int     `yaml:"max_retry"`
	HealthySuccessPct      float64 `yaml:"healthy_success_pct"`
}

// FEConfigBand interprets the frontend's lake_compaction_max_tasks knob.
type FEConfigBand struct {
	Disabled               int `yaml:"disabled"`
	Adaptive                int `yaml:"adaptive"`
	AdaptiveMultiplier      int `yaml:"adaptive_multiplier"`
	MinRecommendedMaxTasks int `yaml:"min_recommended_max_tasks"`
}

// QueueBacklogBand thresholds the compaction/load queue depth.
type QueueBacklogBand struct {
	CriticalPendingCount int     `yaml:"critical_pending_count"`
	WarningPendingCount  int     `yaml:"warning_pending_count"`
	LongRunningAgeHours  float64 `yaml:"long_running_age_hours"`
	CapacityWarnRatio    float64 `yaml:"capacity_warn_ratio"`   // D > ratio*C -> high/critical
	CapacityCriticalRatio float64 `yaml:"capacity_critical_ratio"` // D > ratio*C -> critical
}

// MemoryBand thresholds backend memory-tracker pressure.
type MemoryBand struct {
	WarningUsedPct  float64 `yaml:"warning_used_pct"`
	CriticalUsedPct float64 `yaml:"critical_used_pct"`
	// TCMallocFragmentationWarnPct flags a large gap between allocated and
	// physically resident bytes as likely allocator fragmentation.
	TCMallocFragmentationWarnPct float64 `yaml:"tcmalloc_fragmentation_warn_pct"`
}

// QueryPerfBand thresholds query-latency and queueing behavior.
type QueryPerfBand struct {
	SlowQuerySeconds      float64 `yaml:"slow_query_seconds"`
	CriticalQuerySeconds  float64 `yaml:"critical_query_seconds"`
	HighSpillRatio        float64 `yaml:"high_spill_ratio"`
	HighQueuedQueriesCount int    `yaml:"high_queued_queries_count"`
}

// OperationsBand thresholds cluster-topology health (alive-backend ratio,
// clock skew between nodes).
type OperationsBand struct {
	MinAliveBackendsRatio float64 `yaml:"min_alive_backends_ratio"`
	ClockSkewWarnSeconds  float64 `yaml:"clock_skew_warn_seconds"`
}

// ProfileWaitBand thresholds the profile parser's bottleneck inference:
// wait component as a fraction of add_chunk_time.
type ProfileWaitBand struct {
	FlushWarnRatio      float64 `yaml:"flush_warn_ratio"`
	FlushHighRatio       float64 `yaml:"flush_high_ratio"`
	WriterWarnRatio      float64 `yaml:"writer_warn_ratio"`
	WriterHighRatio      float64 `yaml:"writer_high_ratio"`
	ReplicaWarnRatio     float64 `yaml:"replica_warn_ratio"`
	ReplicaHighRatio     float64 `yaml:"replica_high_ratio"`
	MissingTimeUnaccountedRatio float64 `yaml:"missing_time_unaccounted_ratio"`
}

// DefaultRuleOverrides returns conservative, operator-reviewable defaults
// for every threshold an analyzer pass consults.
func DefaultRuleOverrides() RuleOverrides {
	return RuleOverrides{
		CompactionScore: CompactionScoreBand{
			Excellent: 10,
			Normal:    50,
			Warning:   100,
			Critical:  500,
			Emergency: 1000,
		},
		ThreadConfig: ThreadConfigBand{
			MinPerCore: 0.25,
			MaxPerCore: 0.5,
			AbsMin:     4,
			AbsMax:     64,
		},
		TaskExecution: TaskExecutionBand{
			MaxHealthyTasksPerNode: 8,
			SlowThresholdHours:     2,
			MaxRetry:               5,
			HealthySuccessPct:      90,
		},
		FEConfig: FEConfigBand{
			Disabled:               0,
			Adaptive:               -1,
			AdaptiveMultiplier:     16,
			MinRecommendedMaxTasks: 64,
		},
		QueueBacklog: QueueBacklogBand{
			CriticalPendingCount:  10,
			WarningPendingCount:   5,
			LongRunningAgeHours:   2,
			CapacityWarnRatio:     0.8,
			CapacityCriticalRatio: 1.5,
		},
		Memory: MemoryBand{
			WarningUsedPct:               80,
			CriticalUsedPct:              95,
			TCMallocFragmentationWarnPct: 30,
		},
		QueryPerf: QueryPerfBand{
			SlowQuerySeconds:       10,
			CriticalQuerySeconds:   60,
			HighSpillRatio:         0.3,
			HighQueuedQueriesCount: 20,
		},
		Operations: OperationsBand{
			MinAliveBackendsRatio: 0.8,
			ClockSkewWarnSeconds:  5,
		},
		ProfileWait: ProfileWaitBand{
			FlushWarnRatio:              0.3,
			FlushHighRatio:              0.5,
			WriterWarnRatio:             0.3,
			WriterHighRatio:             0.5,
			ReplicaWarnRatio:            0.2,
			ReplicaHighRatio:            0.4,
			MissingTimeUnaccountedRatio: 0.5,
		},
	}
}
