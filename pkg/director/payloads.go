// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package director

// Action discriminators understood by the director agent.
const (
	ActionGetRoadmap        = "get_roadmap"
	ActionReportKPI         = "report_kpi"
	ActionTriggerKillSwitch = "trigger_kill_switch"
)

// GetRoadmap asks for the milestone table with current gating state.
type GetRoadmap struct{}

func (GetRoadmap) Kind() string { return ActionGetRoadmap }

// ReportKPI asks for the running KPI report built from bus metrics and the
// director's own counters.
type ReportKPI struct{}

func (ReportKPI) Kind() string { return ActionReportKPI }

// TriggerKillSwitch halts new intake across all agents.
type TriggerKillSwitch struct {
	Reason string
}

func (TriggerKillSwitch) Kind() string { return ActionTriggerKillSwitch }
