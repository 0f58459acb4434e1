package generator

// TaskWindow splits a progress range into per-task windows for sharded
// runs. Task ids start at 1; the last task is open ended in case the
// metrics undercounted.
func TaskWindow(taskID, taskLast uint32, total uint64) (lo, hi uint64) {
	taskSize := total / uint64(taskLast)
	if taskSize == 0 {
		taskSize = 1
	}

	lo = taskSize * uint64(taskID-1)
	hi = taskSize * uint64(taskID)

	if taskID == taskLast {
		hi = 0
	}
	return lo, hi
}
