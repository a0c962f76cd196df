package config

// Templates are rendered with text/template. The instance template sees
// .Task, the observation template .Output (with .Output and .ReturnCode),
// the format error template .Actions and the timeout template .Action and .Output.

const DefaultSystemTemplate = `You are a helpful assistant that can interact with a computer.

Your response must contain exactly ONE bash code block with ONE command (or commands connected with && or ||).
Include a THOUGHT section before your command where you explain your reasoning process.
Format your response as shown in <format_example>.

<format_example>
THOUGHT: Your reasoning and analysis here. Explain why you want to perform the action.

` + "```bash" + `
your_command_here
` + "```" + `
</format_example>

Failure to follow these rules will cause your response to be rejected.`

const DefaultInstanceTemplate = `Please solve this issue: {{.Task}}

You can execute bash commands and edit files to implement the necessary changes.

## Recommended Workflow

1. Analyze the codebase by finding and reading relevant files
2. Create a script to reproduce the issue
3. Edit the source code to resolve the issue
4. Verify your fix works by running your script again
5. Test edge cases to ensure your fix is robust

## Important Rules

1. Every response must contain exactly one action
2. The action must be enclosed in triple backticks
3. Directory or environment variable changes are not persistent. Every action is executed in a new subshell.
   However, you can prefix any action with ` + "`MY_ENV_VAR=MY_VALUE cd /path/to/working/dir && ...`" + ` or write/load environment variables from files

When you are done, issue the following command and nothing else:

` + "```bash" + `
echo COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT
` + "```" + `
`

const DefaultActionObservationTemplate = `<returncode>{{.Output.ReturnCode}}</returncode>
{{- if lt (len .Output.Output) 10000}}
<output>
{{.Output.Output -}}
</output>
{{- else}}
<warning>
The output of your last command was too long.
Please try a different command that produces less output.
If you're looking at a file you can try use head, tail or sed to view a smaller number of lines selectively.
</warning>
<output_head>
{{slice .Output.Output 0 5000}}
</output_head>
<elided_chars>
{{sub (len .Output.Output) 10000}} characters elided
</elided_chars>
<output_tail>
{{tail .Output.Output 5000}}
</output_tail>
{{- end}}`

const DefaultFormatErrorTemplate = `Please always provide EXACTLY ONE action in triple backticks, found {{len .Actions}} actions.

Please format your action in triple backticks as shown in <response_example>.

<response_example>
Here are some thoughts about why you want to perform the action.

` + "```bash" + `
<action>
` + "```" + `
</response_example>

If you have completed your assignment, please consult the first message about how to
submit your solution (you will not be able to continue working on this task after that).`

const DefaultTimeoutTemplate = `The last command <command>{{.Action}}</command> timed out and has been killed.
The output of the command was:
<output>
{{.Output}}
</output>
Please try another command and make sure to avoid those requiring interactive input.`
