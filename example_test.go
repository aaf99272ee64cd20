/*
   Copyright 2022 Joseph Cumines

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package ihtn

import (
	"fmt"
)

// deliveryDomain models a courier robot: rooms connected in a line, a package
// to pick up and drop off.
func deliveryDomain(rooms []string) *Domain {
	adjacent := func(a, b string) bool {
		for i := range rooms[:len(rooms)-1] {
			if (rooms[i] == a && rooms[i+1] == b) || (rooms[i] == b && rooms[i+1] == a) {
				return true
			}
		}
		return false
	}
	index := func(room string) int {
		for i, v := range rooms {
			if v == room {
				return i
			}
		}
		return -1
	}
	dom := NewDomain().
		AddAction(`walk`, func(state *State, args []any) (*State, error) {
			from, to := args[0].(string), args[1].(string)
			if state.Get(`location`, `courier`) != from || !adjacent(from, to) {
				return nil, ErrActionPrecondition
			}
			return state.Copy().Set(`location`, `courier`, to), nil
		}).
		AddAction(`pick`, func(state *State, args []any) (*State, error) {
			item := args[0].(string)
			if state.Get(`location`, item) != state.Get(`location`, `courier`) {
				return nil, ErrActionPrecondition
			}
			return state.Copy().Set(`location`, item, `courier`), nil
		}).
		AddAction(`drop`, func(state *State, args []any) (*State, error) {
			item := args[0].(string)
			if state.Get(`location`, item) != `courier` {
				return nil, ErrActionPrecondition
			}
			room := state.Get(`location`, `courier`)
			return state.Copy().Set(`location`, item, room), nil
		})
	// walking to a room decomposes into unit steps toward it
	dom.AddUnigoalMethods(`location`, func(state *State, subject string, object any) ([]Todo, error) {
		if subject != `courier` {
			return nil, ErrMethodNotApplicable
		}
		at, _ := state.Get(`location`, `courier`).(string)
		from, to := index(at), index(object.(string))
		if from < 0 || to < 0 {
			return nil, ErrMethodNotApplicable
		}
		if from == to {
			return nil, nil
		}
		step := rooms[from+1]
		if to < from {
			step = rooms[from-1]
		}
		return []Todo{
			Action{Name: `walk`, Args: []any{at, step}},
			Goal{Pred: `location`, Subj: `courier`, Obj: object},
		}, nil
	})
	// delivering an item: fetch it, then carry it to its destination
	dom.AddUnigoalMethods(`location`, func(state *State, subject string, object any) ([]Todo, error) {
		if subject == `courier` {
			return nil, ErrMethodNotApplicable
		}
		if state.Get(`location`, subject) == `courier` {
			return []Todo{
				Goal{Pred: `location`, Subj: `courier`, Obj: object},
				Action{Name: `drop`, Args: []any{subject}},
			}, nil
		}
		room, _ := state.Get(`location`, subject).(string)
		return []Todo{
			Goal{Pred: `location`, Subj: `courier`, Obj: room},
			Action{Name: `pick`, Args: []any{subject}},
			Goal{Pred: `location`, Subj: `courier`, Obj: object},
			Action{Name: `drop`, Args: []any{subject}},
		}, nil
	})
	return dom
}

func Example_delivery() {
	rooms := []string{`dock`, `hall`, `lab`, `store`}
	dom := deliveryDomain(rooms)
	state := NewState().
		Set(`location`, `courier`, `dock`).
		Set(`location`, `parcel`, `lab`)

	tree, err := Plan(dom, state, []Todo{Goal{Pred: `location`, Subj: `parcel`, Obj: `store`}})
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, act := range tree.ExtractActions() {
		fmt.Println(act)
	}
	final, err := Execute(dom, state, tree)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(`parcel at`, final.Get(`location`, `parcel`))

	// Output:
	// action walk(dock, hall)
	// action walk(hall, lab)
	// action pick(parcel)
	// action walk(lab, store)
	// action drop(parcel)
	// parcel at store
}
