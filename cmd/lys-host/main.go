// command lys-host drives parameterized runs on a lys device over a
// serial channel.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/op/go-logging"
	"github.com/urfave/cli"

	"github.com/inductivekickback/lys"
	"github.com/inductivekickback/lys/internal/logutil"
)

var log *logging.Logger

func main() {
	log = logutil.Setup("lys-host", logging.INFO)

	app := cli.NewApp()
	app.Name = "lys-host"
	app.Usage = "drive parameterized runs on a lys device"
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "deliver parameters, release the device and collect its results",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "device, d",
					Usage: "serial device",
				},
				cli.StringSliceFlag{
					Name:  "param, p",
					Usage: "typed parameter, e.g. u32:42, str:hello or u8s:1,2,3",
				},
			},
			Action: runSession,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}

func runSession(c *cli.Context) error {
	var params []lys.Param
	for _, arg := range c.StringSlice("param") {
		p, err := parseParam(arg)
		if err != nil {
			return err
		}
		params = append(params, p)
	}
	port, err := lys.Open(c.String("device"))
	if err != nil {
		return err
	}
	defer port.Close()

	h := lys.NewHost(port)
	log.Info("waiting for the device")
	results, err := h.Run(params...)
	for _, line := range h.Logs {
		fmt.Println(yellow("device ▶ " + line))
	}
	if err != nil {
		return err
	}
	for i, r := range results {
		fmt.Printf("result %d: %s\n", i, formatParam(r))
	}
	return nil
}

func parseParam(arg string) (lys.Param, error) {
	typ, val, ok := strings.Cut(arg, ":")
	if !ok {
		return lys.Param{}, fmt.Errorf("malformed param %q, want type:value", arg)
	}
	switch typ {
	case "u32":
		v, err := strconv.ParseUint(val, 0, 32)
		if err != nil {
			return lys.Param{}, err
		}
		return lys.U32(uint32(v)), nil
	case "i32":
		v, err := strconv.ParseInt(val, 0, 32)
		if err != nil {
			return lys.Param{}, err
		}
		return lys.I32(int32(v)), nil
	case "u8":
		v, err := strconv.ParseUint(val, 0, 8)
		if err != nil {
			return lys.Param{}, err
		}
		return lys.U8(uint8(v)), nil
	case "i8":
		v, err := strconv.ParseInt(val, 0, 8)
		if err != nil {
			return lys.Param{}, err
		}
		return lys.I8(int8(v)), nil
	case "bool":
		v, err := strconv.ParseBool(val)
		if err != nil {
			return lys.Param{}, err
		}
		return lys.Bool(v), nil
	case "str":
		return lys.Str(val), nil
	case "u32s":
		var vs []uint32
		for _, item := range strings.Split(val, ",") {
			v, err := strconv.ParseUint(item, 0, 32)
			if err != nil {
				return lys.Param{}, err
			}
			vs = append(vs, uint32(v))
		}
		return lys.U32s(vs), nil
	case "i32s":
		var vs []int32
		for _, item := range strings.Split(val, ",") {
			v, err := strconv.ParseInt(item, 0, 32)
			if err != nil {
				return lys.Param{}, err
			}
			vs = append(vs, int32(v))
		}
		return lys.I32s(vs), nil
	case "u8s":
		var vs []uint8
		for _, item := range strings.Split(val, ",") {
			v, err := strconv.ParseUint(item, 0, 8)
			if err != nil {
				return lys.Param{}, err
			}
			vs = append(vs, uint8(v))
		}
		return lys.U8s(vs), nil
	case "i8s":
		var vs []int8
		for _, item := range strings.Split(val, ",") {
			v, err := strconv.ParseInt(item, 0, 8)
			if err != nil {
				return lys.Param{}, err
			}
			vs = append(vs, int8(v))
		}
		return lys.I8s(vs), nil
	case "bools":
		var vs []bool
		for _, item := range strings.Split(val, ",") {
			v, err := strconv.ParseBool(item)
			if err != nil {
				return lys.Param{}, err
			}
			vs = append(vs, v)
		}
		return lys.Bools(vs), nil
	}
	return lys.Param{}, fmt.Errorf("unknown param type %q", typ)
}

func formatParam(p lys.Param) string {
	switch p.Type {
	case lys.TypeU32:
		return strconv.FormatUint(uint64(p.Uint32()), 10)
	case lys.TypeI32:
		return strconv.FormatInt(int64(p.Int32()), 10)
	case lys.TypeU8:
		return strconv.FormatUint(uint64(p.Uint8()), 10)
	case lys.TypeI8:
		return strconv.FormatInt(int64(p.Int8()), 10)
	case lys.TypeBool:
		return strconv.FormatBool(p.Bool())
	case lys.TypeString:
		return strconv.Quote(p.Text())
	case lys.TypeArray:
		var a lys.Array
		if err := p.Store(&a); err != nil {
			return fmt.Sprintf("invalid array: %v", err)
		}
		switch a.Elem {
		case lys.TypeU32:
			return fmt.Sprint(a.Uint32s())
		case lys.TypeI32:
			return fmt.Sprint(a.Int32s())
		case lys.TypeU8:
			return fmt.Sprint(a.Uint8s())
		case lys.TypeI8:
			return fmt.Sprint(a.Int8s())
		case lys.TypeBool:
			return fmt.Sprint(a.Bools())
		}
	}
	return fmt.Sprintf("%#x", p.Bytes())
}

func yellow(s string) string {
	y := color.New(color.FgHiYellow)
	y.EnableColor()
	return y.SprintFunc()(s)
}

func red(s string) string {
	r := color.New(color.FgHiRed)
	r.EnableColor()
	return r.SprintFunc()(s)
}
