package starbind

// Code in this file is derived from go.starlark.net/repl/repl.go
// Which is licensed under the following copyright:
//
// Copyright (c) 2017 The Bazel Authors.  All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are
// met:
//
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the
//    distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
//    contributors may be used to endorse or promote products derived
//    from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
// "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
// LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
// A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
// HOLDER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
// LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
// DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
// THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
// (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

import (
	"fmt"
	"io"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/go-delve/liner"
)

const (
	normalPrompt = ">>> "
	extraPrompt  = "... "

	exitCommand = "exit"
)

// lineReader is the part of *liner.State used by the REPL.
type lineReader interface {
	Prompt(string) (string, error)
	AppendHistory(string)
}

// REPL reads starlark from the terminal and runs it until EOF or "exit".
// Globals defined during the session are exported when it ends.
func (env *Env) REPL() error {
	rl := liner.NewLiner()
	defer rl.Close()
	rl.SetCtrlCAborts(true)
	return env.repl(rl)
}

func (env *Env) repl(rl lineReader) error {
	thread := env.newThread()
	globals := make(starlark.StringDict, len(env.env))
	for k, v := range env.env {
		globals[k] = v
	}
	in := &replInput{rl: rl, out: env.out}
	for !in.eof {
		if err := isCancelled(thread); err != nil {
			return err
		}
		f, err := in.chunk()
		switch {
		case in.eof:
		case err != nil:
			printError(env.out, err)
		default:
			evalChunk(thread, globals, f, env.out)
		}
		env.out.Flush()
	}
	fmt.Fprintln(env.out)
	return env.exportGlobals(globals)
}

// replInput reads one statement, possibly spanning several lines, at a time.
type replInput struct {
	rl     lineReader
	out    EchoWriter
	prompt string
	eof    bool
}

func (in *replInput) chunk() (*syntax.File, error) {
	in.prompt = normalPrompt
	return syntax.ParseCompoundStmt("<stdin>", in.readLine)
}

func (in *replInput) readLine() ([]byte, error) {
	line, err := in.rl.Prompt(in.prompt)
	in.out.Echo(in.prompt + line + "\n")
	in.prompt = extraPrompt
	if err == io.EOF || line == exitCommand {
		in.eof = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	in.rl.AppendHistory(line)
	return []byte(line + "\n"), nil
}

// evalChunk runs f against globals. A lone expression is evaluated and its
// value printed. Names bound by statements stay visible to later chunks,
// even when execution fails part way.
func evalChunk(thread *starlark.Thread, globals starlark.StringDict, f *syntax.File, out io.Writer) {
	if len(f.Stmts) == 1 {
		if stmt, ok := f.Stmts[0].(*syntax.ExprStmt); ok {
			v, err := starlark.EvalExpr(thread, stmt.X, globals)
			switch {
			case err != nil:
				printError(out, err)
			case v != starlark.None:
				fmt.Fprintln(out, v)
			}
			return
		}
	}
	prog, err := starlark.FileProgram(f, globals.Has)
	if err != nil {
		printError(out, err)
		return
	}
	res, err := prog.Init(thread, globals)
	if err != nil {
		printError(out, err)
	}
	for k, v := range res {
		globals[k] = v
	}
}

// printError prints err, with its starlark backtrace when there is one.
func printError(out io.Writer, err error) {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		fmt.Fprintln(out, evalErr.Backtrace())
		return
	}
	fmt.Fprintln(out, err)
}
