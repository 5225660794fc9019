// framegen 生成并校验气味播放命令帧
//
//	framegen 1:5 2:5 12:60      生成帧
//	framegen -verify            对照已知帧
//	framegen -parse F5...55     解码帧
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/taoyao-code/scent-server/internal/protocol/scent"
)

// knownFrames 设备实测帧
var knownFrames = []struct {
	channel  uint8
	duration int
	hex      string
}{
	{1, 5, "F500000001020501000013882BD455"},
	{2, 5, "F500000001020502000013882B9055"},
}

func main() {
	verify := flag.Bool("verify", false, "对照已知帧校验")
	parse := flag.String("parse", "", "解码十六进制帧")
	flag.Parse()

	var err error
	switch {
	case *verify:
		err = runVerify(os.Stdout)
	case *parse != "":
		err = runParse(os.Stdout, *parse)
	default:
		args := flag.Args()
		if len(args) == 0 {
			args = []string{"1:5", "2:5", "3:5", "1:10"}
		}
		err = runGenerate(os.Stdout, args)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parsePair 解析 "channel:seconds"
func parsePair(s string) (uint8, int, error) {
	ch, dur, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid pair %q, want channel:seconds", s)
	}
	c, err := strconv.ParseUint(ch, 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid channel in %q: %w", s, err)
	}
	d, err := strconv.Atoi(dur)
	if err != nil || d < 0 {
		return 0, 0, fmt.Errorf("invalid duration in %q", s)
	}
	return uint8(c), d, nil
}

func runGenerate(w io.Writer, pairs []string) error {
	for _, p := range pairs {
		ch, d, err := parsePair(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "scent %d, %ds -> %s\n", ch, d, scent.HexFrame(ch, d))
	}
	return nil
}

func runVerify(w io.Writer) error {
	failed := 0
	for _, k := range knownFrames {
		got := scent.HexFrame(k.channel, k.duration)
		status := "ok"
		if got != k.hex {
			status = "MISMATCH"
			failed++
		}
		fmt.Fprintf(w, "scent %d, %ds: %s expected %s [%s]\n", k.channel, k.duration, got, k.hex, status)
	}
	if failed > 0 {
		return fmt.Errorf("%d frame(s) mismatched", failed)
	}
	return nil
}

func runParse(w io.Writer, s string) error {
	b, err := decodeHex(s)
	if err != nil {
		return err
	}
	f, err := scent.ParseFrame(b)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "channel=%d duration_ms=%d (%ds) crc=ok\n", f.Channel, f.DurationMs, f.DurationSeconds())
	return nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return b, nil
}
