package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/goblincore/nero"
)

const chatHelp = `Commands:
  /energy <1-5> [mood]   log your energy
  /tasks                 list open tasks
  /done <n>              mark task n done
  /suggest               what should I do now?
  /yes, /no              answer the prompt that's showing
  /focus [n]             start a focus session (optionally on task n)
  /checkin <good|stuck|done|break>
  /end [done]            end the focus session
  /remind <in> <text>    e.g. /remind 20m drink water
  /voice on|off          speak replies to voice input
  /quit
Anything else is sent to Nero.`

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to Nero",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := &lockedWriter{w: os.Stdout}
			c, err := openCompanion(ctx, func(p nero.Prompt) {
				fmt.Fprintf(out, "\n[%s] %s\n> ", promptLabel(p.Kind), p.Text)
			})
			if err != nil {
				return err
			}
			defer c.Close()

			r := &repl{c: c, out: out}
			return r.run(ctx, os.Stdin)
		},
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type repl struct {
	c   *nero.Companion
	out io.Writer
}

func (r *repl) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	msgs := r.c.Messages()
	for _, m := range msgs[max(0, len(msgs)-4):] {
		r.printMessage(m)
	}
	r.printf("(type /help for commands)\n> ")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.printf("\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				r.printf("> ")
				continue
			}
			if quit := r.handle(ctx, line); quit {
				return nil
			}
			r.printf("> ")
		}
	}
}

func (r *repl) printMessage(m nero.Message) {
	who := "you"
	if m.Role == nero.RoleCompanion {
		who = "nero"
	}
	r.printf("%s: %s\n", who, m.Content)
}

func (r *repl) handle(ctx context.Context, line string) bool {
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	var err error
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		r.printf("%s\n", chatHelp)
	case "/energy":
		err = r.energy(ctx, args)
	case "/tasks":
		printTasksTo(r.out, r.c.OpenTasks())
	case "/done":
		err = r.done(ctx, args)
	case "/suggest":
		_, text := r.c.Suggest()
		r.printf("nero: %s\n", text)
	case "/yes", "/no":
		err = r.resolve(ctx, cmd == "/yes")
	case "/focus":
		err = r.focus(ctx, args)
	case "/checkin":
		resp := nero.CheckInGood
		if len(args) > 0 {
			resp = nero.CheckInResponse(args[0])
		}
		var m nero.Message
		if m, err = r.c.RespondCheckIn(ctx, resp); err == nil {
			r.printMessage(m)
		}
	case "/end":
		var m nero.Message
		if m, err = r.c.EndBodyDouble(ctx, len(args) > 0 && args[0] == "done"); err == nil {
			r.printMessage(m)
		}
	case "/remind":
		err = r.remind(ctx, args)
	case "/voice":
		err = r.c.SetAutoSpeak(len(args) > 0 && args[0] == "on")
	default:
		r.printf("unknown command %s (try /help)\n", cmd)
	}
	if err != nil {
		r.printf("! %v\n", err)
	}
	return false
}

func (r *repl) send(ctx context.Context, text string) {
	reply, err := r.c.Send(ctx, text, nero.SendOptions{})
	switch {
	case errors.Is(err, nero.ErrTurnAbandoned):
		return
	case err != nil:
		r.printf("! %v\n", err)
		return
	}
	for _, t := range reply.Completed {
		r.printf("  ✓ %s\n", t.Description)
	}
	for _, t := range reply.NewTasks {
		r.printf("  + %s\n", t.Description)
	}
	for _, n := range reply.Nudges {
		r.printf("  ⏰ %s at %s\n", n.Message, n.ScheduledFor.Format(time.Kitchen))
	}
	r.printMessage(reply.Message)
	if reply.Notice != "" {
		r.printf("  (%s)\n", reply.Notice)
	}
}

func (r *repl) energy(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: /energy <1-5> [mood]")
	}
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return nero.ErrInvalidEnergy
	}
	sg, err := r.c.LogEnergy(ctx, level, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	r.printf("  energy %d/5 logged\n", level)
	if sg != nil {
		// surface the queued suggestion now rather than at the next tick
		r.c.Poll(ctx)
	}
	return nil
}

func (r *repl) done(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: /done <n>")
	}
	t, err := r.c.CompleteTask(ctx, resolveTaskID(r.c, args[0]))
	if err != nil {
		return err
	}
	r.printf("  ✓ %s\n", t.Description)
	return nil
}

func (r *repl) resolve(ctx context.Context, yes bool) error {
	p, ok := r.c.ShownPrompt()
	if !ok {
		return nero.ErrNoPrompt
	}
	switch p.Kind {
	case nero.PromptSuggestion:
		if !yes {
			return r.c.RejectSuggestion(ctx)
		}
		t, err := r.c.AcceptSuggestion(ctx)
		if err != nil {
			return err
		}
		return r.startFocus(ctx, t.ID)
	case nero.PromptCheckIn:
		resp := nero.CheckInGood
		if !yes {
			resp = nero.CheckInStuck
		}
		m, err := r.c.RespondCheckIn(ctx, resp)
		if err == nil {
			r.printMessage(m)
		}
		return err
	default:
		_, err := r.c.ResolvePrompt(ctx, yes)
		return err
	}
}

func (r *repl) focus(ctx context.Context, args []string) error {
	id := ""
	if len(args) > 0 {
		id = resolveTaskID(r.c, args[0])
	}
	return r.startFocus(ctx, id)
}

func (r *repl) startFocus(ctx context.Context, taskID string) error {
	m, err := r.c.StartBodyDouble(ctx, taskID)
	if err != nil {
		return err
	}
	r.printMessage(m)
	return nil
}

func (r *repl) remind(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: /remind <in> <text>")
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return err
	}
	n, err := r.c.ScheduleNudge(ctx, strings.Join(args[1:], " "), time.Now().Add(d), "")
	if err != nil {
		return err
	}
	r.printf("  ⏰ %s at %s\n", n.Message, n.ScheduledFor.Format(time.Kitchen))
	return nil
}

func printTasksTo(w io.Writer, tasks []nero.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "  no open tasks")
		return
	}
	for i, t := range tasks {
		fmt.Fprintf(w, "  %d. %s\n", i+1, t.Description)
	}
}

func promptLabel(k nero.PromptKind) string {
	switch k {
	case nero.PromptCheckIn:
		return "check-in"
	case nero.PromptNudge:
		return "reminder"
	case nero.PromptSuggestion:
		return "suggestion"
	case nero.PromptEnergyCheck:
		return "energy"
	}
	return string(k)
}
