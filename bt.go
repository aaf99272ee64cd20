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
	bt "github.com/joeycumines/go-behaviortree"
)

// Node exposes the executor as a behavior tree node: each tick executes at
// most one primitive action, returning Running while the plan has work left,
// Success once it drains, and an error (propagated as Failure) only when
// replanning fails. This embeds run-lazy-refineahead execution in tickers and
// larger trees.
func (e *Executor) Node() bt.Node {
	return bt.New(func([]bt.Node) (bt.Status, error) {
		if e.Done() {
			return bt.Success, nil
		}
		if err := e.Step(); err != nil {
			return bt.Failure, err
		}
		if e.Done() {
			return bt.Success, nil
		}
		return bt.Running, nil
	})
}
