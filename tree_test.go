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
	"testing"
)

func buildTestTree() (*SolutionTree, *Node, *Node, *Node) {
	tree := newTree(NewState(), []Todo{Task{Name: `top`}})
	root := tree.node(tree.Root)
	root.Expanded = true
	task := tree.addChild(root, Task{Name: `top`})
	task.Expanded = true
	task.Method = `task:top[0]`
	action := tree.addChild(task, Action{Name: `a`})
	action.Expanded = true
	action.Primitive = true
	return tree, root, task, action
}

func TestTree_reset(t *testing.T) {
	tree, _, task, action := buildTestTree()
	tree.reset(task)
	if len(task.Children) != 0 || task.Expanded || task.Method != `` {
		t.Error(task)
	}
	if _, ok := task.Blacklist[`task:top[0]`]; !ok {
		t.Error(task.Blacklist)
	}
	if tree.node(action.ID) != nil {
		t.Error(`descendant survived reset`)
	}
}

func TestTree_dropDescendantsDeep(t *testing.T) {
	tree, _, task, action := buildTestTree()
	// nested descendant
	action.Primitive = false
	nested := tree.addChild(action, Action{Name: `b`})
	tree.dropDescendants(task.ID)
	if tree.node(action.ID) != nil || tree.node(nested.ID) != nil {
		t.Error(`descendants survived`)
	}
	if len(tree.Nodes) != 2 {
		t.Error(len(tree.Nodes))
	}
}

func TestTree_responsibleFor(t *testing.T) {
	tree, root, task, action := buildTestTree()
	if got := tree.responsibleFor(action.ID); got != task {
		t.Error(got)
	}
	// the synthetic root is never responsible
	if got := tree.responsibleFor(task.ID); got != nil {
		t.Error(got)
	}
	if got := tree.responsibleFor(root.ID); got != nil {
		t.Error(got)
	}
	if got := tree.responsibleFor(`missing`); got != nil {
		t.Error(got)
	}
}

func TestTree_checkViolations(t *testing.T) {
	t.Run(`primitive with children`, func(t *testing.T) {
		tree, _, _, action := buildTestTree()
		action.Primitive = true
		tree.addChild(action, Action{Name: `b`})
		if err := tree.Check(); err == nil {
			t.Error(`expected error`)
		}
	})
	t.Run(`tried method blacklisted`, func(t *testing.T) {
		tree, _, task, _ := buildTestTree()
		task.Blacklist[task.Method] = struct{}{}
		if err := tree.Check(); err == nil {
			t.Error(`expected error`)
		}
	})
	t.Run(`unknown child`, func(t *testing.T) {
		tree, _, task, _ := buildTestTree()
		task.Children = append(task.Children, `missing`)
		if err := tree.Check(); err == nil {
			t.Error(`expected error`)
		}
	})
	t.Run(`valid`, func(t *testing.T) {
		tree, _, _, _ := buildTestTree()
		if err := tree.Check(); err != nil {
			t.Error(err)
		}
	})
}

func TestTree_statsAndCost(t *testing.T) {
	tree, _, _, _ := buildTestTree()
	stats := tree.Stats()
	if stats.TotalNodes != 3 || stats.ExpandedNodes != 3 || stats.PrimitiveActions != 1 || stats.MaxDepth != 2 {
		t.Error(stats)
	}
	if tree.PlanCost() != 1 {
		t.Error(tree.PlanCost())
	}
}
