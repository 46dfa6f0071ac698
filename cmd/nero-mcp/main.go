// nero-mcp exposes the Nero companion as an MCP stdio server.
//
// Configuration comes from nero.yaml, .env and NERO_* variables (see
// internal/config). GEMINI_API_KEY or OPENAI_API_KEY enable LLM replies.
//
// Usage:
//
//	go install github.com/goblincore/nero/cmd/nero-mcp
//	nero-mcp
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/goblincore/nero"
	"github.com/goblincore/nero/internal/config"
)

func main() {
	// stdout carries the protocol
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	fc, err := config.Load(os.Getenv("NERO_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if lvl, err := zerolog.ParseLevel(fc.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx := context.Background()
	c, err := nero.Init(ctx, fc.Nero())
	if err != nil {
		log.Fatal().Err(err).Msg("nero init")
	}
	defer c.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "nero-mcp",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "send_message",
		Description: "Send a message to Nero and get its reply. Commitments, completions, reminders and personal facts in the message are tracked automatically.",
	}, sendHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "log_energy",
		Description: "Record an energy check-in (1-5) with an optional mood. Returns a task suggestion for that energy level when one fits.",
	}, logEnergyHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List open tasks, or recently completed ones with status=completed.",
	}, listTasksHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "complete_task",
		Description: "Mark an open task done.",
	}, completeTaskHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_task",
		Description: "Drop an open task without completing it.",
	}, deleteTaskHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_task",
		Description: "Answer 'what should I do now?' from open tasks, current energy and learned patterns.",
	}, suggestHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "patterns",
		Description: "List the energy and productivity patterns Nero has noticed. Set refresh to re-run the analysis first.",
	}, patternsHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "schedule_nudge",
		Description: "Schedule a reminder. Give either in_minutes or an RFC3339 at, and optionally a cron recurrence.",
	}, scheduleNudgeHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "poll",
		Description: "Check for a proactive prompt (focus check-in, reminder, task suggestion or energy check). Set resolve to action or dismiss the one shown.",
	}, pollHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "focus",
		Description: "Body-double focus session: action is start, checkin or end.",
	}, focusHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "status",
		Description: "Show what Nero remembers: profile, current energy, open tasks, patterns, sync state.",
	}, statusHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_memory",
		Description: "Forget the profile and conversation. Tasks, energy history and patterns are kept.",
	}, resetHandler(c))

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatal().Err(err).Msg("nero-mcp")
	}
}

// --- Input types ---

type sendInput struct {
	Message string `json:"message"         jsonschema:"What the user said"`
	Voice   bool   `json:"voice,omitempty" jsonschema:"The message was spoken; the reply is spoken too when auto-speak is on"`
}

type logEnergyInput struct {
	Level int    `json:"level"          jsonschema:"Energy level 1 (drained) to 5 (wired)"`
	Mood  string `json:"mood,omitempty" jsonschema:"Optional one-word mood"`
}

type listTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"open (default) or completed"`
}

type taskInput struct {
	TaskID string `json:"task_id" jsonschema:"Task ID from list_tasks"`
}

type suggestInput struct {
	Respond string `json:"respond,omitempty" jsonschema:"accept or reject the suggestion currently shown by poll"`
}

type patternsInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"Re-run pattern analysis before listing"`
}

type scheduleNudgeInput struct {
	Message    string `json:"message"              jsonschema:"Reminder text"`
	InMinutes  int    `json:"in_minutes,omitempty" jsonschema:"Minutes from now"`
	At         string `json:"at,omitempty"         jsonschema:"RFC3339 time, used when in_minutes is 0"`
	Recurrence string `json:"recurrence,omitempty" jsonschema:"Optional cron expression, e.g. '0 9 * * 1-5'"`
}

type pollInput struct {
	Resolve string `json:"resolve,omitempty" jsonschema:"action or dismiss the shown prompt"`
}

type focusInput struct {
	Action    string `json:"action"              jsonschema:"start, checkin or end"`
	TaskID    string `json:"task_id,omitempty"   jsonschema:"Task to focus on (start)"`
	Response  string `json:"response,omitempty"  jsonschema:"Check-in answer: good, stuck, done or break (checkin)"`
	Completed bool   `json:"completed,omitempty" jsonschema:"The task got done (end)"`
}

type emptyInput struct{}

// --- Handlers ---

func sendHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, sendInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input sendInput) (*mcp.CallToolResult, any, error) {
		reply, err := c.Send(ctx, input.Message, nero.SendOptions{Voice: input.Voice})
		if err != nil {
			return errorResult(err), nil, nil
		}
		out := map[string]any{
			"reply":    reply.Message.Content,
			"fallback": reply.Fallback,
		}
		if len(reply.NewTasks) > 0 {
			out["new_tasks"] = tasksToMaps(reply.NewTasks)
		}
		if len(reply.Completed) > 0 {
			out["completed"] = tasksToMaps(reply.Completed)
		}
		if len(reply.Nudges) > 0 {
			var ns []map[string]any
			for _, n := range reply.Nudges {
				ns = append(ns, nudgeToMap(n))
			}
			out["reminders"] = ns
		}
		if reply.SessionDone {
			out["focus_session"] = "finished"
		}
		if reply.Notice != "" {
			out["notice"] = reply.Notice
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func logEnergyHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, logEnergyInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input logEnergyInput) (*mcp.CallToolResult, any, error) {
		sg, err := c.LogEnergy(ctx, input.Level, input.Mood)
		if err != nil {
			return errorResult(err), nil, nil
		}
		out := map[string]any{"status": "logged", "level": input.Level}
		if sg != nil {
			out["suggestion"] = suggestionToMap(sg)
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func listTasksHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, listTasksInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input listTasksInput) (*mcp.CallToolResult, any, error) {
		tasks := c.OpenTasks()
		if input.Status == "completed" {
			tasks = c.CompletedTasks()
		}
		return textResult(jsonString(tasksToMaps(tasks))), nil, nil
	}
}

func completeTaskHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, taskInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input taskInput) (*mcp.CallToolResult, any, error) {
		t, err := c.CompleteTask(ctx, input.TaskID)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(jsonString(taskToMap(t))), nil, nil
	}
}

func deleteTaskHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, taskInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input taskInput) (*mcp.CallToolResult, any, error) {
		if err := c.DeleteTask(ctx, input.TaskID); err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(`{"status": "deleted"}`), nil, nil
	}
}

func suggestHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, suggestInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input suggestInput) (*mcp.CallToolResult, any, error) {
		switch input.Respond {
		case "accept":
			t, err := c.AcceptSuggestion(ctx)
			if err != nil {
				return errorResult(err), nil, nil
			}
			return textResult(jsonString(map[string]any{"status": "accepted", "task": taskToMap(t)})), nil, nil
		case "reject":
			if err := c.RejectSuggestion(ctx); err != nil {
				return errorResult(err), nil, nil
			}
			return textResult(`{"status": "rejected"}`), nil, nil
		}

		sg, text := c.Suggest()
		out := map[string]any{"text": text}
		if sg != nil {
			out["suggestion"] = suggestionToMap(sg)
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func patternsHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, patternsInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input patternsInput) (*mcp.CallToolResult, any, error) {
		if input.Refresh {
			c.RefreshPatterns(ctx)
		}
		patterns := c.Patterns()
		out := make([]map[string]any, len(patterns))
		for i, p := range patterns {
			out[i] = map[string]any{
				"id":          p.ID,
				"type":        p.Type,
				"description": p.Description,
				"confidence":  p.Confidence,
				"evidence":    p.Evidence,
				"surfaced":    p.SurfacedToUser,
			}
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func scheduleNudgeHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, scheduleNudgeInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input scheduleNudgeInput) (*mcp.CallToolResult, any, error) {
		var at time.Time
		switch {
		case input.InMinutes > 0:
			at = time.Now().Add(time.Duration(input.InMinutes) * time.Minute)
		case input.At != "":
			t, err := time.Parse(time.RFC3339, input.At)
			if err != nil {
				return textResult(fmt.Sprintf("invalid 'at' timestamp: %v", err)), nil, nil
			}
			at = t
		default:
			return textResult(`{"error": "provide in_minutes or at"}`), nil, nil
		}

		n, err := c.ScheduleNudge(ctx, input.Message, at, input.Recurrence)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(jsonString(nudgeToMap(n))), nil, nil
	}
}

func pollHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, pollInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input pollInput) (*mcp.CallToolResult, any, error) {
		if input.Resolve != "" {
			p, err := c.ResolvePrompt(ctx, input.Resolve == "action")
			if err != nil {
				return errorResult(err), nil, nil
			}
			return textResult(jsonString(map[string]any{"resolved": p.Kind, "actioned": input.Resolve == "action"})), nil, nil
		}

		p, ok := c.Poll(ctx)
		if !ok {
			return textResult(`{"prompt": null}`), nil, nil
		}
		return textResult(jsonString(map[string]any{
			"prompt":   p.Kind,
			"text":     p.Text,
			"shown_at": p.ShownAt.Format(time.RFC3339),
		})), nil, nil
	}
}

func focusHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, focusInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input focusInput) (*mcp.CallToolResult, any, error) {
		var (
			msg nero.Message
			err error
		)
		switch input.Action {
		case "start":
			msg, err = c.StartBodyDouble(ctx, input.TaskID)
		case "checkin":
			msg, err = c.RespondCheckIn(ctx, nero.CheckInResponse(input.Response))
		case "end":
			msg, err = c.EndBodyDouble(ctx, input.Completed)
		default:
			return textResult(`{"error": "action must be start, checkin or end"}`), nil, nil
		}
		if err != nil {
			return errorResult(err), nil, nil
		}
		out := map[string]any{"reply": msg.Content}
		if s, ok := c.Session(); ok {
			out["session"] = map[string]any{
				"task":          s.TaskDescription,
				"started_at":    s.StartedAt.Format(time.RFC3339),
				"next_check_in": s.NextCheckIn.Format(time.RFC3339),
				"check_ins":     s.CheckInCount,
			}
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func statusHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, emptyInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
		st := c.Status()
		out := map[string]any{
			"device_id":     st.DeviceID,
			"profile":       st.Profile,
			"open_tasks":    len(st.OpenTasks),
			"patterns":      len(st.Patterns),
			"sync":          st.Sync,
			"unsent":        st.Unsent,
			"llm":           st.LLM,
			"auto_speak":    st.AutoSpeak,
			"messages_kept": st.MessagesKept,
		}
		if st.Energy != nil {
			out["energy"] = map[string]any{"level": st.Energy.Level, "mood": st.Energy.Mood}
		}
		if !st.LastSeen.IsZero() {
			out["last_seen"] = st.LastSeen.Format(time.RFC3339)
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func resetHandler(c *nero.Companion) func(context.Context, *mcp.CallToolRequest, emptyInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
		if err := c.Reset(ctx); err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(`{"status": "reset"}`), nil, nil
	}
}

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return textResult(fmt.Sprintf("error: %v", err))
}

func taskToMap(t nero.Task) map[string]any {
	m := map[string]any{
		"id":          t.ID,
		"description": t.Description,
		"status":      t.Status,
		"created_at":  t.CreatedAt.Format(time.RFC3339),
	}
	if t.CompletedAt != nil {
		m["completed_at"] = t.CompletedAt.Format(time.RFC3339)
	}
	if t.EnergyAtCreation > 0 {
		m["energy_at_creation"] = t.EnergyAtCreation
	}
	return m
}

func tasksToMaps(tasks []nero.Task) []map[string]any {
	out := make([]map[string]any, len(tasks))
	for i, t := range tasks {
		out[i] = taskToMap(t)
	}
	return out
}

func suggestionToMap(sg *nero.Suggestion) map[string]any {
	return map[string]any{
		"task":       taskToMap(sg.Task),
		"reason":     sg.Reason,
		"confidence": sg.Confidence,
		"score":      sg.Score,
	}
}

func nudgeToMap(n nero.Nudge) map[string]any {
	m := map[string]any{
		"id":            n.ID,
		"message":       n.Message,
		"scheduled_for": n.ScheduledFor.Format(time.RFC3339),
	}
	if n.Recurrence != "" {
		m["recurrence"] = n.Recurrence
	}
	return m
}

func jsonString(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal: %v"}`, err)
	}
	return string(data)
}
