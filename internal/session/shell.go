package session

// ShellDriver is the command surface the state machine drives the external
// presentation shell through. The shell owns window lifecycle and rendering;
// the machine only tells it what to show. Implementations must tolerate
// repeated calls — the machine guards for idempotency, but a lost
// acknowledgement can still replay a command.
type ShellDriver interface {
	// LockWindow pins the exam window so it cannot be moved or minimized.
	LockWindow()
	// EnterKiosk puts the window into full-screen kiosk presentation.
	EnterKiosk()
	// ExitKiosk restores normal window chrome.
	ExitKiosk()
	// ShowWarning displays the warning overlay with the headline message
	// and starts the shell's grace countdown.
	ShowWarning(message string)
	// CloseWarning dismisses the warning overlay if one is showing.
	CloseWarning()
	// ShowTerminated renders the terminal "session terminated" screen.
	ShowTerminated(reason string)
	// UnlockForExit releases the window lock enough for exit controls.
	UnlockForExit()
	// Quit asks the shell to exit the application.
	Quit()
}
