package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/gohome-lyric/internal/service"
)

type session struct {
	ctx    context.Context
	client *service.Client
	out    outputMode
}

func withSession(c *cli.Context, fn func(s session) error) error {
	client, closeConn, err := dial(c)
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	return fn(session{ctx: ctx, client: client, out: outputMode{json: c.Bool("json"), w: c.App.Writer}})
}

func locationsCmd(c *cli.Context) error {
	return withSession(c, func(s session) error {
		locations, err := s.locations()
		if err != nil {
			return err
		}
		if s.out.json {
			return s.out.printJSON(locations)
		}
		rows := [][]string{{"LOCATION", "ID", "DEVICES"}}
		for _, loc := range locations {
			rows = append(rows, []string{str(loc["name"]), id(loc["location_id"]), strconv.Itoa(len(list(loc["devices"])))})
		}
		return s.out.table(rows)
	})
}

func devicesCmd(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: lyric-cli devices <location>")
	}
	return withSession(c, func(s session) error {
		loc, err := s.location(c.Args().Get(0))
		if err != nil {
			return err
		}
		resp, err := s.client.ListDevices(s.ctx, mustStruct(map[string]any{"location_id": loc["location_id"]}))
		if err != nil {
			return err
		}
		devices := list(resp.AsMap()["devices"])
		if s.out.json {
			return s.out.printJSON(devices)
		}
		rows := [][]string{{"DEVICE", "ID", "ALIVE", "MODE", "INDOOR", "HEAT", "COOL", "FAN", "HOLD"}}
		for _, raw := range devices {
			d, _ := raw.(map[string]any)
			rows = append(rows, []string{
				str(d["name"]), str(d["device_id"]), fmt.Sprint(d["is_alive"]), str(d["mode"]),
				num(d["indoor_temperature"]), num(d["heat_setpoint"]), num(d["cool_setpoint"]),
				str(d["fan_mode"]), str(d["setpoint_status"]),
			})
		}
		return s.out.table(rows)
	})
}

func stateCmd(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: lyric-cli state <location> <device>")
	}
	return withSession(c, func(s session) error {
		target, err := s.target(c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return err
		}
		resp, err := s.client.GetDeviceState(s.ctx, mustStruct(target))
		if err != nil {
			return err
		}
		return s.out.printJSON(resp.AsMap()["device"])
	})
}

func setCmd(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: lyric-cli set <location> <device> [--mode M] [--heat T] [--cool T] [--hold H] [--until HH:MM:SS]")
	}
	return withSession(c, func(s session) error {
		target, err := s.target(c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return err
		}
		changes := 0
		set := func(flag, key string, value any) {
			if c.IsSet(flag) {
				target[key] = value
				changes++
			}
		}
		set("mode", "mode", c.String("mode"))
		set("heat", "heat_setpoint", c.Float64("heat"))
		set("cool", "cool_setpoint", c.Float64("cool"))
		set("hold", "thermostat_setpoint_status", c.String("hold"))
		set("until", "next_period_time", c.String("until"))
		set("auto-changeover", "auto_changeover_active", c.Bool("auto-changeover"))
		if changes == 0 {
			return fmt.Errorf("nothing to change")
		}

		resp, err := s.client.UpdateThermostat(s.ctx, mustStruct(target))
		if err != nil {
			return err
		}
		if s.out.json {
			return s.out.printJSON(resp.AsMap())
		}
		return s.out.printf("ok: %s/%s\n", c.Args().Get(0), c.Args().Get(1))
	})
}

func fanCmd(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: lyric-cli fan <location> <device> [mode]")
	}
	return withSession(c, func(s session) error {
		target, err := s.target(c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return err
		}
		if mode := c.Args().Get(2); mode != "" {
			target["mode"] = mode
		}
		resp, err := s.client.UpdateFan(s.ctx, mustStruct(target))
		if err != nil {
			return err
		}
		if s.out.json {
			return s.out.printJSON(resp.AsMap())
		}
		return s.out.printf("ok: %s/%s fan %s\n", c.Args().Get(0), c.Args().Get(1), c.Args().Get(2))
	})
}

func (s session) locations() ([]map[string]any, error) {
	resp, err := s.client.ListLocations(s.ctx, &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, raw := range list(resp.AsMap()["locations"]) {
		if loc, ok := raw.(map[string]any); ok {
			out = append(out, loc)
		}
	}
	return out, nil
}

func (s session) location(input string) (map[string]any, error) {
	locations, err := s.locations()
	if err != nil {
		return nil, err
	}
	return resolveNamed("location", input, locations, "location_id")
}

// target resolves location and device names into the request fields the
// daemon expects.
func (s session) target(locationInput, deviceInput string) (map[string]any, error) {
	loc, err := s.location(locationInput)
	if err != nil {
		return nil, err
	}
	var devices []map[string]any
	for _, raw := range list(loc["devices"]) {
		if d, ok := raw.(map[string]any); ok {
			devices = append(devices, d)
		}
	}
	device, err := resolveNamed("device", deviceInput, devices, "device_id")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"location_id": loc["location_id"],
		"device_id":   device["device_id"],
	}, nil
}

func mustStruct(in map[string]any) *structpb.Struct {
	out, err := structpb.NewStruct(in)
	if err != nil {
		panic(err)
	}
	return out
}

func list(v any) []any {
	items, _ := v.([]any)
	return items
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) string {
	f, ok := v.(float64)
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(f, 'f', 1, 64)
}

// id renders a structpb number as an integer.
func id(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case string:
		return n
	}
	return ""
}
