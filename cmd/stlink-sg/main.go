// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dbecker/gostlink-sg"
	log "github.com/sirupsen/logrus"
)

const usage = `usage: stlink-sg [flags] <device> [command]

flags:
  -B, -blink            blink the Discovery board LEDs and exit
  -C, -check PATH       verify flash against PATH and exit
  -D, -download PATH    write PATH into flash and exit
  -U, -upload PATH      read flash into PATH and exit
  -v, -verbose          increase log verbosity (repeatable)
  -V, -version          print version and exit
  -u, -usage, -h, -help show this message

commands (given after <device> when no flag above is used):
  regs                  dump the core register file
  flash:r:PATH           read flash to PATH
  flash:v:PATH           verify flash against PATH
  run                    resume execution
  status                 print core run state
  blink                  blink the Discovery board LEDs
  info                   print core id / debug id / option bytes
  write                  poke a fixed demo half-word into flash and one into SRAM
`

func main() {
	var (
		blink    bool
		check    string
		download string
		upload   string
		verbose  int
		version  bool
		help     bool
	)

	flag.BoolVar(&blink, "B", false, "blink and exit")
	flag.BoolVar(&blink, "blink", false, "blink and exit")
	flag.StringVar(&check, "C", "", "verify flash against PATH")
	flag.StringVar(&check, "check", "", "verify flash against PATH")
	flag.StringVar(&download, "D", "", "write PATH into flash")
	flag.StringVar(&download, "download", "", "write PATH into flash")
	flag.StringVar(&upload, "U", "", "read flash into PATH")
	flag.StringVar(&upload, "upload", "", "read flash into PATH")
	flag.BoolVar(&version, "V", false, "print version")
	flag.BoolVar(&version, "version", false, "print version")
	flag.BoolVar(&help, "h", false, "show usage")
	flag.BoolVar(&help, "help", false, "show usage")
	flag.BoolVar(&help, "u", false, "show usage")
	flag.BoolVar(&help, "usage", false, "show usage")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	verboseCount := 0
	flag.Var(countFlag{&verboseCount}, "v", "increase verbosity")
	flag.Var(countFlag{&verboseCount}, "verbose", "increase verbosity")

	flag.Parse()
	verbose = verboseCount

	if help {
		flag.Usage()
		os.Exit(0)
	}
	if version {
		fmt.Println("stlink-sg (gostlink-sg)")
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}
	devicePath := args[0]

	cfg := gostlink.DefaultSessionConfig()
	cfg.Verbosity = verbose

	session, err := gostlink.Open(devicePath, cfg)
	if err != nil {
		log.Errorf("could not open %s: %v", devicePath, err)
		os.Exit(1)
	}
	defer session.Close()

	log.Infof("connected: %s", session)

	switch {
	case blink:
		err = session.Blink(10)
	case check != "":
		err = session.CheckFlashFile(check, session.MemoryMap().FlashBase)
	case download != "":
		err = session.WriteFlashFile(download, session.MemoryMap().FlashBase)
	case upload != "":
		err = session.ReadToFile(upload, session.MemoryMap().FlashBase, session.MemoryMap().FlashSize)
	case len(args) > 1:
		err = runCommand(session, args[1])
	default:
		err = printStatus(session)
	}

	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func runCommand(s *gostlink.Session, cmd string) error {
	switch {
	case cmd == "regs":
		regs, err := s.ReadAllRegs()
		if err != nil {
			return err
		}
		for i, r := range regs {
			fmt.Printf("r%-2d = 0x%08x\n", i, r)
		}
		return nil

	case strings.HasPrefix(cmd, "flash:r:"):
		path := cmd[len("flash:r:"):]
		return s.ReadToFile(path, s.MemoryMap().FlashBase, s.MemoryMap().FlashSize)

	case strings.HasPrefix(cmd, "flash:v:"):
		path := cmd[len("flash:v:"):]
		err := s.CheckFlashFile(path, s.MemoryMap().FlashBase)
		if err != nil {
			fmt.Printf("  Check flash: file %s did not match flash contents\n", path)
			return err
		}
		fmt.Printf("  Check flash: file %s matched flash contents\n", path)
		return nil

	case cmd == "run":
		return s.Run()

	case cmd == "status":
		return printStatus(s)

	case cmd == "blink":
		return s.Blink(10)

	case cmd == "info":
		info, err := s.Info()
		if err != nil {
			return err
		}
		fmt.Printf("core id:     0x%08x\n", info.CoreID)
		fmt.Printf("debug mcu id: 0x%08x\n", info.DebugMCUID)
		fmt.Printf("option bytes: 0x%08x\n", info.OptionBytes)
		return nil

	case cmd == "write":
		if err := s.WriteHalfword(0x08000ba0, 0xDBEC); err != nil {
			return err
		}
		return s.WriteHalfword(0x20000040, 0xDBEC)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printStatus(s *gostlink.Session) error {
	status, err := s.GetStatus()
	if err != nil {
		return err
	}
	fmt.Printf("ARM status: %s\n", status)
	return nil
}

// countFlag implements flag.Value for a repeatable boolean flag that
// increments a counter each time it is given.
type countFlag struct {
	n *int
}

func (c countFlag) String() string { return "" }

func (c countFlag) Set(string) error {
	*c.n++
	return nil
}

func (c countFlag) IsBoolFlag() bool { return true }
