package task

// builtinTemplates maps stage name to its task template.
var builtinTemplates = map[string]string{
	"planning": planningTemplate,
	"coding":   codingTemplate,
	"testing":  testingTemplate,
	"review":   reviewTemplate,
}

const planningTemplate = `# Plan: {{issue_title}}

## Issue #{{issue_number}}
{{issue_body}}

## Repository Context
Project: {{project}}
Target branch: {{target_branch}}
Work branch: {{branch}}
Stage: planning (attempt {{attempt}})

## Instructions
1. Read the relevant code to understand the current state
2. Break the issue down into a concrete implementation approach
3. Note which files will change and what tests are needed
4. Do NOT write implementation code in this stage
{{#if error_context}}

## Previous Attempt Failures
Earlier planning attempts on this issue failed:
{{error_context}}
Address these directly in your new plan.
{{/if}}

## Completion
If this issue's work is already merged into {{target_branch}}, say so and
cite the merge request (e.g. !123) instead of planning.

When your plan is ready, end your response with exactly:
PLANNING_PHASE_COMPLETE: <one-line summary of the plan>
`

const codingTemplate = `# Implement: {{issue_title}}

## Issue #{{issue_number}}
{{issue_body}}

## Repository Context
Project: {{project}}
Target branch: {{target_branch}}
Work branch: {{branch}}
Stage: coding (attempt {{attempt}})

## Instructions
1. Check out the work branch {{branch}} (create it from {{target_branch}} if needed)
2. Implement the issue as planned
3. Write or update tests for your changes
4. Commit and push the branch to origin
{{#if error_context}}

## Previous Attempt Failures
Earlier coding attempts on this issue failed:
{{error_context}}
Fix these before anything else.
{{/if}}

## Completion
If this issue's work is already merged into {{target_branch}}, say so and
cite the merge request (e.g. !123) instead of implementing.

When the implementation is committed and pushed, end your response with exactly:
CODING_PHASE_COMPLETE: <one-line summary of the change>
`

const testingTemplate = `# Test: {{issue_title}}

## Issue #{{issue_number}}
{{issue_body}}

## Repository Context
Project: {{project}}
Target branch: {{target_branch}}
Work branch: {{branch}}
Stage: testing (attempt {{attempt}})

## Instructions
1. Run the full test suite on {{branch}}
2. Fix any failures, commit, and push
3. Wait for the CI pipeline on your pushed commit and confirm it passes
{{#if error_context}}

## Previous Attempt Failures
Earlier testing attempts on this issue failed:
{{error_context}}
Fix these before anything else.
{{/if}}

## Completion
If the pipeline fails and you cannot fix it, end your response with one of:
PIPELINE_FAILED_TESTS: <details>
PIPELINE_FAILED_BUILD: <details>
PIPELINE_FAILED_LINT: <details>

When the pipeline passes, end your response with exactly:
TESTING_PHASE_COMPLETE: pipeline #<id> passed at <commit sha>
`

const reviewTemplate = `# Review: {{issue_title}}

## Issue #{{issue_number}}
{{issue_body}}

## Repository Context
Project: {{project}}
Target branch: {{target_branch}}
Work branch: {{branch}}
Stage: review (attempt {{attempt}})

## Instructions
1. Review the branch diff against {{target_branch}} for correctness and style
2. Fix anything the review turns up, commit, and push
3. Confirm the CI pipeline on the final commit passes
{{#if error_context}}

## Previous Attempt Failures
Earlier review attempts on this issue failed:
{{error_context}}
Fix these before anything else.
{{/if}}

## Completion
If this issue's work is already merged into {{target_branch}}, say so and
cite the merge request (e.g. !123).

When the branch is ready to merge, end your response with exactly:
REVIEW_PHASE_COMPLETE: pipeline #<id> passed at <commit sha>
`
