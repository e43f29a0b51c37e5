package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-fat32/fat32sd/fat32"
	"github.com/spf13/cobra"
)

// blockRawDevice groups the raw block operations available on a
// sdspi.Card but not on a plain file, so the shell can offer erase and
// wellwritten only when the underlying device actually supports them
// (writemulti goes through BlockDevice.WriteBlocks and works on any device). imgDevice never implements this interface; a caller
// wiring fatshell to a real sdspi.Card would satisfy it directly.
type blockRawDevice interface {
	EraseBlocks(startLBA, endLBA uint32) error
	CountWellWrittenBlocks() (uint32, error)
}

func runShell(cmd *cobra.Command, args []string) error {
	partitionRelative, _ := cmd.Flags().GetBool("partition-relative-fat")
	maxClusters, _ := cmd.Flags().GetInt("max-file-clusters")
	noPartitionTable, _ := cmd.Flags().GetBool("no-partition-table")

	dev, err := openImgDevice(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()

	finder := fat32.MBRBootSector()
	if noPartitionTable {
		finder = fat32.FixedBootSector(0)
	}

	opts := []fat32.Option{
		fat32.WithPartitionRelativeFAT(partitionRelative),
		fat32.WithMaxFileClusters(maxClusters),
	}
	vol, err := fat32.Mount(dev, finder, opts...)
	if err != nil {
		return fmt.Errorf("fatshell: mount: %w", err)
	}

	sh := &shell{vol: vol, dev: dev, cur: vol.Root(), out: os.Stdout}
	if raw, ok := any(dev).(blockRawDevice); ok {
		sh.raw = raw
	}

	fmt.Fprintf(sh.out, "fatshell: mounted %s, root cluster %d\n", args[0], vol.BPB().RootCluster)
	sh.repl(os.Stdin)
	return nil
}

type shell struct {
	vol *fat32.Volume
	dev *imgDevice
	cur fat32.Cursor
	raw blockRawDevice
	out io.Writer
}

func (s *shell) repl(in io.Reader) {
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(s.out, "%s> ", s.cur.ShortPath())
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			s.dispatch(fields[0], fields[1:])
		}
		fmt.Fprintf(s.out, "%s> ", s.cur.ShortPath())
	}
}

func (s *shell) dispatch(cmd string, args []string) {
	var err error
	switch cmd {
	case "cd":
		err = s.cmdCd(args)
	case "ls":
		err = s.cmdLs(args)
	case "cat":
		err = s.cmdCat(args)
	case "readblock":
		err = s.cmdReadBlock(args)
	case "writeblock":
		err = s.cmdWriteBlock(args)
	case "erase":
		err = s.cmdErase(args)
	case "writemulti":
		err = s.cmdWriteMulti(args)
	case "wellwritten":
		err = s.cmdWellWritten(args)
	case "exit", "quit":
		os.Exit(0)
	case "help":
		fmt.Fprintln(s.out, "commands: cd ls cat readblock writeblock erase writemulti wellwritten exit")
	default:
		err = fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

func (s *shell) cmdCd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cd <dir>")
	}
	next, err := s.vol.ChangeDirectory(s.cur, args[0])
	if err != nil {
		return err
	}
	s.cur = next
	return nil
}

func (s *shell) cmdLs(args []string) error {
	filter := fat32.FilterShortName | fat32.FilterLongName | fat32.FilterLastModifiedTime
	if len(args) == 1 && args[0] == "-a" {
		filter |= fat32.FilterHidden
	}
	_, err := s.vol.List(s.cur, filter, s.out)
	return err
}

func (s *shell) cmdCat(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cat <file>")
	}
	_, err := s.vol.ReadFile(s.cur, args[0], s.out)
	return err
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func (s *shell) cmdReadBlock(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: readblock <lba>")
	}
	lba, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	var buf [512]byte
	if _, err := s.dev.ReadBlocks(buf[:], int64(lba)); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%x\n", buf[:])
	return nil
}

func (s *shell) cmdWriteBlock(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: writeblock <lba> <hexbytes>")
	}
	lba, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	raw, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("writeblock: %w", err)
	}
	var buf [512]byte
	copy(buf[:], raw)
	_, err = s.dev.WriteBlocks(buf[:], int64(lba))
	return err
}

func (s *shell) cmdErase(args []string) error {
	if s.raw == nil {
		return fmt.Errorf("erase requires a real SD card device, not a plain image file")
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: erase <startLBA> <endLBA>")
	}
	start, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	end, err := parseUint32(args[1])
	if err != nil {
		return err
	}
	return s.raw.EraseBlocks(start, end)
}

func (s *shell) cmdWriteMulti(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: writemulti <startLBA>")
	}
	lba, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	buf := make([]byte, 512*2)
	_, err = s.dev.WriteBlocks(buf, int64(lba))
	return err
}

func (s *shell) cmdWellWritten(args []string) error {
	if s.raw == nil {
		return fmt.Errorf("wellwritten requires a real SD card device, not a plain image file")
	}
	n, err := s.raw.CountWellWrittenBlocks()
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, n)
	return nil
}
