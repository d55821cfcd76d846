package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/vqueue/pkg/vqueue"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type recordView struct {
	Position uint64          `json:"position"`
	Type     string          `json:"type"`
	Body     string          `json:"body,omitempty"`
	Object   json.RawMessage `json:"object,omitempty"`
	Raw      string          `json:"raw,omitempty"`
}

// newRecordView renders object bodies as individual JSON, falling back to
// base64 when they do not parse.
func newRecordView(msg *vqueue.Message) recordView {
	v := recordView{Position: msg.Position, Type: string(rune(msg.Type))}
	if msg.Type != vqueue.MsgTypeObject {
		v.Body = string(msg.Body)
		return v
	}
	if out, err := vqueue.ConvertIndividualToJSON(msg.Body); err == nil {
		v.Object = json.RawMessage(out)
		return v
	}
	v.Raw = base64.StdEncoding.EncodeToString(msg.Body)
	return v
}

func printRecord(cmd *cobra.Command, msg *vqueue.Message, asJSON bool) error {
	v := newRecordView(msg)
	if asJSON {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	payload := v.Body
	switch {
	case v.Object != nil:
		payload = string(v.Object)
	case v.Raw != "":
		payload = v.Raw
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", v.Position, v.Type, payload)
	return err
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
