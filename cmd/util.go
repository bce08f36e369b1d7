// octopus: a haplotype-based variant caller for short-read sequencing data.
// Copyright (c) 2026 Gregory Magoon.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/gmagoon/octopus/blob/master/LICENSE.txt>.

package cmd

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gmagoon/octopus/internal"
	"github.com/gmagoon/octopus/utils"
)

// ProgramMessage is the first line printed when the octopus binary is
// called.
var ProgramMessage string

func init() {
	ProgramMessage = fmt.Sprint(
		"\n", utils.ProgramName, " version ", utils.ProgramVersion,
		" compiled with ", runtime.Version(),
		" - see ", utils.ProgramURL, " for more information.\n",
	)
}

// HelpMessage is printed to show the --help flag.
const HelpMessage = "Print command details:\n" +
	"[--help]\n"

// A UsageError reports invalid command line use; the process exits
// with code 1.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageErrorf(format string, args ...interface{}) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// An InputDataError reports unreadable or malformed input data; the
// process exits with code 2.
type InputDataError struct {
	Err error
}

func (e *InputDataError) Error() string {
	return e.Err.Error()
}

// ExitCode maps an error returned by a command to the process exit
// code.
func ExitCode(err error) int {
	switch err.(type) {
	case *UsageError:
		return 1
	case *InputDataError:
		return 2
	default:
		return 2
	}
}

func parseFlags(flags flag.FlagSet, requiredArgs int, help string) error {
	if len(os.Args) < requiredArgs {
		fmt.Fprint(os.Stderr, help)
		return usageErrorf("incorrect number of parameters")
	}
	flags.SetOutput(ioutil.Discard)
	if err := flags.Parse(os.Args[requiredArgs:]); err != nil {
		if err == flag.ErrHelp {
			fmt.Fprint(os.Stderr, help)
			os.Exit(0)
		}
		fmt.Fprint(os.Stderr, help)
		return usageErrorf("%v", err)
	}
	if flags.NArg() > 0 {
		fmt.Fprint(os.Stderr, help)
		return usageErrorf("cannot parse remaining parameters: %v", flags.Args())
	}
	return nil
}

// multiFlag collects a repeatable string option.
type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func checkExist(parameter, filename string) error {
	if filename == "" {
		return usageErrorf("missing filename for %v", parameter)
	}
	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) {
			return &InputDataError{Err: fmt.Errorf("file %v does not exist", filename)}
		}
		return &InputDataError{Err: fmt.Errorf("%v when trying to access file %v", err, filename)}
	}
	return nil
}

func createLogFilename() string {
	t := time.Now()
	zone, _ := t.Zone()
	return fmt.Sprintf("logs/octopus/octopus-%d-%02d-%02d-%02d-%02d-%02d-%09d-%v.log",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}

// setLogOutput duplicates stderr so that log output lands both on the
// terminal and in a run log file.
func setLogOutput(path string) {
	logPath := createLogFilename()
	var fullPath string
	if path == "" {
		fullPath = filepath.Join(os.Getenv("HOME"), logPath)
	} else {
		fullPath = filepath.Join(path, logPath)
	}
	internal.MkdirAll(filepath.Dir(fullPath), 0700)
	f := internal.FileCreate(fullPath)
	fmt.Fprintln(f, ProgramMessage)

	orgStderr, err := unix.Dup(2)
	if err != nil {
		log.Panic(err)
	}
	ferr := os.NewFile(uintptr(orgStderr), "/dev/stderr")
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		log.Panic(err)
	}

	multi := io.MultiWriter(f, ferr)

	log.SetOutput(multi)
	log.Println("Created log file at", fullPath)
	log.Println("Command line:", os.Args)
}
