// Package tui provides the terminal user interface for troupe's chat command.
//
// The chat view is a single scrolling transcript over an input field. User
// messages go into the session queue; the reply for each message is awaited
// asynchronously so the interface stays responsive while agents work. Engine
// events are rendered into the transcript between messages, giving a live
// activity feed of task starts, completions, failures, and handoffs.
//
// Usage:
//
//	program, app := tui.NewChatProgram(tui.ChatConfig{
//	    Queue: q,
//	    Title: "quarterly report",
//	})
//	go program.Run()
//
//	// Forward engine events
//	for ev := range eng.Events() {
//	    program.Send(tui.EngineEventMsg{Event: ev})
//	}
//
//	// Signal that the session loop exited
//	program.Send(tui.SessionDoneMsg{Err: err})
//
// Submitting input while a run is in flight is how users interrupt: the
// engine pauses at the next task boundary, the message is handled, and
// execution resumes automatically.
package tui
