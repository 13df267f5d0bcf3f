//
// Copyright 2024 The ViperOS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Command viperctl is a small introspection client for a running init
// binary: it queries init's debug HTTP endpoint and prints the live
// assign-registry table. CLI skeleton follows cmd/sysbox-fs/main.go.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

type assignEntry struct {
	Name   string `json:"Name"`
	Handle uint32 `json:"Handle"`
	Flags  uint32 `json:"Flags"`
}

func fetchJSON(addr, path string, out interface{}) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s%s", addr, path))
	if err != nil {
		return fmt.Errorf("contacting init at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("init returned %s: %s", resp.Status, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	app := cli.NewApp()
	app.Name = "viperctl"
	app.Usage = "inspect a running ViperOS init process"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "addr",
			Value: "127.0.0.1:9482",
			Usage: "init's debug endpoint address",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "assign",
			Usage: "list every name registered in the system-global assign registry",
			Action: func(ctx *cli.Context) error {
				var entries []assignEntry
				if err := fetchJSON(ctx.GlobalString("addr"), "/assign", &entries); err != nil {
					return err
				}
				fmt.Printf("%-31s %-10s %s\n", "NAME", "HANDLE", "FLAGS")
				for _, e := range entries {
					fmt.Printf("%-31s %-10d %#x\n", e.Name, e.Handle, e.Flags)
				}
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
