// Package sh provides an interactive shell playing the peer of a bridge.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/abiosoft/ishell"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell   *ishell.Shell
	Config  *Config
	Session *Session
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&SendCmd,
		&SendRawCmd,
		&LastCmd,
		&StatsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect connects the bridge using current config.
func (s *Shell) Connect() error {
	if s.Interactive {
		s.Shell.Printf("Connecting %s, listening on %s ...\n", s.Config.Bridge, s.Config.Listen)
	}
	session, err := Dial(context.Background(), s.Config)
	if err != nil {
		return err
	}
	if s.Interactive {
		session.OnReceive = func(token string) {
			s.Shell.Printf("< %s\n", token)
		}
	}
	s.Disconnect()
	s.Session = session.Start()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", s.Config.Bridge))
	return nil
}

// Disconnect disconnects current bridge.
func (s *Shell) Disconnect() {
	if s.Session != nil {
		s.Session.Close()
		s.Session = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Print prints a result as JSON or text.
func (s *Shell) Print(c *ishell.Context, val interface{}, text string) {
	if s.OutputJSON {
		out, err := json.Marshal(val)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect {
		if err := s.Connect(); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Bridge, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ConnectCmd connects the bridge.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[BRIDGE [LISTEN]]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				s.Config.Bridge = c.Args[0]
			}
			if len(c.Args) > 1 {
				s.Config.Listen = c.Args[1]
			}
			if err := s.Connect(); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current bridge.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// SendCmd sends a value to the bridge.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "VALUE (0-4294967295)",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("VALUE required"))
				return
			}
			if err := ShellFrom(c).Session.Send(c.Args[0]); err != nil {
				c.Err(err)
			}
		}),
	}

	// SendRawCmd sends text as is, e.g. to exercise malformed tokens.
	SendRawCmd = ishell.Cmd{
		Name: "send.raw",
		Help: "TEXT",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).Session.SendRaw([]byte(strings.Join(c.Args, " "))); err != nil {
				c.Err(err)
			}
		}),
	}

	// LastCmd prints the last value received from the bridge.
	LastCmd = ishell.Cmd{
		Name:    "last",
		Aliases: []string{"l"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			st := s.Session.Stats()
			text := st.Last
			if st.Received == 0 {
				text = "nothing received"
			}
			s.Print(c, map[string]string{"last": st.Last}, text)
		}),
	}

	// StatsCmd prints the counters of the session.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			st := s.Session.Stats()
			s.Print(c, st, fmt.Sprintf("sent %d, received %d", st.Sent, st.Received))
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
