// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/arcadelive/realtime-core/pkg/agent"
	"github.com/arcadelive/realtime-core/pkg/common"
	"github.com/arcadelive/realtime-core/pkg/envelope"
	"github.com/arcadelive/realtime-core/pkg/mathutil"
)

// SubTask is one unit of a coordinated task, dispatched directly against its
// agent and raced against its own timeout.
type SubTask struct {
	AgentID string
	Payload agent.Payload
	Timeout time.Duration
}

// TaskResult carries either the sub-task's payload or its failure. A failed
// or timed-out sub-task never fails its siblings.
type TaskResult struct {
	Payload agent.Payload
	Error   string
}

// ExecuteCoordinatedTask runs every sub-task concurrently and collects a
// result per agent id. A timed-out sub-task's underlying work is not
// cancelled; it may still complete with no observer.
func (o *Orchestrator) ExecuteCoordinatedTask(rootScope *envelope.Scope, taskID string, tasks []SubTask) map[string]TaskResult {
	scope := rootScope.NewChildScope("orchestrator.ExecuteCoordinatedTask")
	defer scope.Finish()
	scope.SetAttributes("arcade.coordination.task_id", taskID)

	results := make(map[string]TaskResult, len(tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	maxTimeout := time.Duration(o.cfg.CoordinatedTaskMaxSec) * time.Second

	for _, task := range tasks {
		wg.Add(1)
		go func(task SubTask) {
			defer wg.Done()

			result := o.runSubTask(scope, taskID, task, mathutil.Min(task.Timeout, maxTimeout))
			mu.Lock()
			results[task.AgentID] = result
			mu.Unlock()
		}(task)
	}
	wg.Wait()

	return results
}

func (o *Orchestrator) runSubTask(scope *envelope.Scope, taskID string, task SubTask, timeout time.Duration) TaskResult {
	o.mu.Lock()
	ag, ok := o.agents[task.AgentID]
	o.mu.Unlock()
	if !ok {
		return TaskResult{Error: fmt.Sprintf("%s: %s", agent.ErrUnknownAgent, task.AgentID)}
	}

	msg := agent.Message{
		ID:            common.GenerateUUID(),
		Type:          agent.MessageRequest,
		From:          "orchestrator:" + taskID,
		To:            []string{task.AgentID},
		Timestamp:     o.clk.Now(),
		CorrelationID: common.GenerateUUID(),
		Payload:       task.Payload,
	}

	type outcome struct {
		payload agent.Payload
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		payload, err := ag.ProcessMessage(scope, msg)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return TaskResult{Error: out.err.Error()}
		}
		return TaskResult{Payload: out.payload}
	case <-time.After(timeout):
		scope.Log.WithField("agent", task.AgentID).WithField("taskID", taskID).
			Warnf("sub-task timed out after %s", timeout)
		return TaskResult{Error: fmt.Sprintf("sub-task timed out after %s", timeout)}
	}
}
